package health

import (
	"fmt"
	"sort"
	"time"
)

// severity orders states for aggregation, worst last
var severity = map[string]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StatusHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy returns a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy returns an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded returns a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// Aggregate reports the worst state among subs. Sub-statuses are kept
// sorted by component name.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "No components reporting")
	}

	worst := StatusHealthy
	failing := 0
	for _, sub := range subs {
		if severity[sub.Status] > severity[worst] {
			worst = sub.Status
		}
		if !sub.IsHealthy() {
			failing++
		}
	}

	message := fmt.Sprintf("All %d components are healthy", len(subs))
	if failing > 0 {
		message = fmt.Sprintf("%d of %d components are not healthy", failing, len(subs))
	}

	status := newStatus(component, worst, message)
	status.SubStatuses = append([]Status(nil), subs...)
	sort.Slice(status.SubStatuses, func(i, j int) bool {
		return status.SubStatuses[i].Component < status.SubStatuses[j].Component
	})
	return status
}
