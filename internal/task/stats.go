package task

// TaskStats 是 /api/v1/operations/stats 的响应体。
// Terminal 计入 Failed 中不会再被重试的任务。
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	Terminal        int   `json:"terminal"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

func (s *TaskStats) add(task *Task) {
	s.Total++
	switch task.Status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
		if task.Terminal {
			s.Terminal++
		}
	}
	if task.UpdatedAt == 0 {
		return
	}
	s.NewestUpdatedAt = max(s.NewestUpdatedAt, task.UpdatedAt)
	if s.OldestUpdatedAt == 0 || task.UpdatedAt < s.OldestUpdatedAt {
		s.OldestUpdatedAt = task.UpdatedAt
	}
}
