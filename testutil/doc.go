// Package testutil provides test doubles for stages and their hosts.
//
// MockHost records everything a stage sends to its host: pushed buffers,
// announced events and posted errors. Push failures can be injected per
// output.
//
// MockUnit is a scriptable processing unit with configurable endpoints,
// lifecycle hooks and a Process function. It counts every hook call.
//
// MockTransport is an in-memory publish/subscribe transport that delivers
// synchronously, so host bindings can be tested without a broker.
package testutil
