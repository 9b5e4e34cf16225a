package adapter

// QueueStatus is the heartbeat snapshot handed to the QueueStatus hook.
type QueueStatus struct {
	Depth         int
	Awaited       int
	LocalWorkers  int
	RemoteWorkers int
}

// Hooks are optional callbacks a run carries. All fields may be nil; the
// invoking helpers below are safe on a nil receiver field.
type Hooks struct {
	// Prepare runs in the master before any worker is forked.
	Prepare func(concurrency int) error

	// AfterFork runs in each worker child before its first POP.
	AfterFork func()

	// AroundFilter can reorder or prune the candidate file list before
	// discovery walks it.
	AroundFilter func(files []string) []string

	// RunWorker wraps the worker loop. The argument runs the loop and
	// returns the worker exit status; implementations must call it.
	RunWorker func(run func() int) int

	// Summarize contributes an extra block to the exit summary.
	Summarize func() string

	// QueueStatus receives a snapshot on every dispatch-loop heartbeat.
	// It must not block.
	QueueStatus func(QueueStatus)
}

// InvokePrepare calls the Prepare hook if set.
func (h *Hooks) InvokePrepare(concurrency int) error {
	if h == nil || h.Prepare == nil {
		return nil
	}
	return h.Prepare(concurrency)
}

// InvokeAfterFork calls the AfterFork hook if set.
func (h *Hooks) InvokeAfterFork() {
	if h == nil || h.AfterFork == nil {
		return
	}
	h.AfterFork()
}

// ApplyAroundFilter filters the candidate files through the hook if set.
func (h *Hooks) ApplyAroundFilter(files []string) []string {
	if h == nil || h.AroundFilter == nil {
		return files
	}
	return h.AroundFilter(files)
}

// InvokeRunWorker runs the worker loop through the hook if set, otherwise
// directly.
func (h *Hooks) InvokeRunWorker(run func() int) int {
	if h == nil || h.RunWorker == nil {
		return run()
	}
	return h.RunWorker(run)
}

// InvokeSummarize returns the hook's summary block, or empty.
func (h *Hooks) InvokeSummarize() string {
	if h == nil || h.Summarize == nil {
		return ""
	}
	return h.Summarize()
}

// InvokeQueueStatus delivers a heartbeat snapshot if the hook is set.
func (h *Hooks) InvokeQueueStatus(s QueueStatus) {
	if h == nil || h.QueueStatus == nil {
		return
	}
	h.QueueStatus(s)
}
