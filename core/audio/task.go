package audio

import (
	"slices"
	"time"
)

// Task is a callback bound to the output clock. It only fires while the
// context is rendering.
type Task struct {
	c        *Context
	at       int64
	interval int64
	done     bool
	canceled bool
	fn       func()
}

// At runs fn once the clock reaches the given time.
func (c *Context) At(seconds float64, fn func()) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addTaskLocked(c.toFrame(seconds), 0, fn)
}

// After runs fn once d of clock time has been rendered.
func (c *Context) After(d time.Duration, fn func()) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addTaskLocked(c.frame+c.durationFrames(d), 0, fn)
}

// Every runs fn each time another interval of clock time has been rendered.
// Missed intervals are coalesced into a single call.
func (c *Context) Every(interval time.Duration, fn func()) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := max(c.durationFrames(interval), 1)
	return c.addTaskLocked(c.frame+frames, frames, fn)
}

func (c *Context) addTaskLocked(at, interval int64, fn func()) *Task {
	task := &Task{c: c, at: at, interval: interval, fn: fn}
	c.tasks = append(c.tasks, task)
	return task
}

func (c *Context) dueTasksLocked() []*Task {
	var due []*Task
	c.tasks = slices.DeleteFunc(c.tasks, func(task *Task) bool {
		if task.canceled || task.done {
			return true
		}
		if task.at > c.frame {
			return false
		}

		due = append(due, task)
		if task.interval == 0 {
			task.done = true
			return true
		}
		for task.at <= c.frame {
			task.at += task.interval
		}
		return false
	})
	return due
}

// Stop cancels the task. It is safe to call more than once.
func (t *Task) Stop() {
	if t == nil {
		return
	}

	t.c.mu.Lock()
	t.canceled = true
	t.c.tasks = slices.DeleteFunc(t.c.tasks, func(task *Task) bool { return task == t })
	t.c.mu.Unlock()
}

// Stopped reports whether the task was canceled.
func (t *Task) Stopped() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.canceled
}
