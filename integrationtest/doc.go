// Package integrationtest runs pipelines against a real broker in a
// container. The tests are skipped with -short.
package integrationtest
