package task

import (
	"sync"
	"time"
)

// RepeatingTask executes a task in a specific interval asynchronously.
// Executions never overlap: the next tick is only handled once the previous execution returned.
type RepeatingTask struct {
	task     func()
	interval time.Duration

	mtx     sync.Mutex
	running bool
	stop    chan struct{}
}

// NewRepeating creates a new repeating asynchronous task
func NewRepeating(task func(), interval time.Duration) *RepeatingTask {
	return &RepeatingTask{
		task:     task,
		interval: interval,
	}
}

// Start starts the repeating task.
// If the task is already running, this is a no-op.
func (task *RepeatingTask) Start() {
	task.mtx.Lock()
	defer task.mtx.Unlock()
	if task.running {
		return
	}
	task.stop = make(chan struct{})
	task.running = true
	go task.loop(task.stop)
}

func (task *RepeatingTask) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A stop that raced with the tick wins
			select {
			case <-stop:
				return
			default:
			}
			task.task()
		}
	}
}

// Running reports whether the task is currently scheduled
func (task *RepeatingTask) Running() bool {
	task.mtx.Lock()
	defer task.mtx.Unlock()
	return task.running
}

// Stop stops the repeating task.
// If the task is not running, this is a no-op.
// forceExec defines whether to execute the task one last time just before the task shuts down.
// Stop does not wait for an execution in progress, so it is safe to call from within the task itself.
func (task *RepeatingTask) Stop(forceExec bool) {
	task.mtx.Lock()
	if !task.running {
		task.mtx.Unlock()
		return
	}
	close(task.stop)
	task.running = false
	task.mtx.Unlock()

	if forceExec {
		task.task()
	}
}
