package model

import "sort"

// UrgentTodos selects the todos that need attention first: incomplete todos
// that are high priority, medium priority and due within three days, or due
// within one day regardless of priority. Results are ordered by priority
// (high first), then by due date (earliest first, dated before undated).
// today anchors the due-date arithmetic so results are reproducible.
func UrgentTodos(todos []Todo, today Date) []Todo {
	var urgent []Todo
	for _, t := range todos {
		if t.Completed {
			continue
		}
		dated := t.DueDate != nil
		days := 0
		if dated {
			days = today.DaysUntil(*t.DueDate)
		}
		switch {
		case t.Priority == PriorityHigh:
			urgent = append(urgent, t)
		case t.Priority == PriorityMedium && dated && days <= 3:
			urgent = append(urgent, t)
		case dated && days <= 1:
			urgent = append(urgent, t)
		}
	}

	sort.SliceStable(urgent, func(i, j int) bool {
		a, b := urgent[i], urgent[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() > b.Priority.rank()
		}
		switch {
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		}
		return a.DueDate.Before(*b.DueDate)
	})

	return urgent
}

// AssigneeProgress summarizes one assignee's share of a project's todos.
type AssigneeProgress struct {
	Assignee  string
	Total     int
	Completed int
	Percent   int
}

// ProgressByAssignee computes per-assignee completion over a project's todos.
// Todos with no assignee are grouped under the empty string. Assignees from
// the project's roster appear even when they have no todos yet.
func ProgressByAssignee(todos []Todo, assignees []string) []AssigneeProgress {
	index := map[string]int{"": 0}
	stats := []AssigneeProgress{{}}

	for _, name := range assignees {
		if _, ok := index[name]; ok {
			continue
		}
		index[name] = len(stats)
		stats = append(stats, AssigneeProgress{Assignee: name})
	}

	for _, t := range todos {
		i, ok := index[t.Assignee]
		if !ok {
			// Referenced by a todo but missing from the roster; report it
			// rather than dropping the todo from the summary.
			i = len(stats)
			index[t.Assignee] = i
			stats = append(stats, AssigneeProgress{Assignee: t.Assignee})
		}
		stats[i].Total++
		if t.Completed {
			stats[i].Completed++
		}
	}

	for i := range stats {
		stats[i].Percent = ComputeProgress(stats[i].Completed, stats[i].Total)
	}
	return stats
}
