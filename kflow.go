// Package kflow builds and runs dataflow graphs.
//
// A graph is assembled with a Builder from operators (see package kops),
// compiled into subgraphs and strata (package kcompile) and executed by a
// single-threaded scheduler (package kruntime). App adds a run loop around
// the scheduler and the collaborators that feed it from the outside, such
// as Kafka consumers.
//
//	b := kflow.NewBuilder()
//	src, inbox := kops.SourceStream[string]()
//	upper := b.AddNode("upper", kops.Map(strings.ToUpper))
//	b.Connect(b.AddNode("source", src), upper)
//	b.Connect(upper, b.AddNode("print", kops.ForEach(func(s string) { fmt.Println(s) })))
//
//	app, err := b.Build(kflow.WithLog(log))
//	if err != nil {
//		return err
//	}
//	go app.Run(ctx)
//	_ = inbox.Send("hello")
package kflow
