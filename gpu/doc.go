// Package gpu is the device layer behind the "gpu" and "hybrid" kernels.
//
// A Backend discovers devices and opens a Context. The Context allocates
// float64 device buffers laid out exactly like a host tile, creates ordered
// execution streams, and builds StepPlans that run the Trotter-Suzuki block
// step, the Rabi mixing, scaling and norm reductions on device memory.
//
// Work enqueued on one Stream runs in order; work on different streams may
// overlap. Transfers are stream-ordered too: the host must Synchronize the
// stream before reading a download or reusing an upload's source slice.
//
// No real device driver ships with this package. MockBackend runs every
// operation on the host through the same arithmetic as the cpu kernel, with
// each Stream backed by its own goroutine, so the asynchronous contract is
// exercised end to end.
package gpu
