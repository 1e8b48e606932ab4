package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forgo/cadence/api/internal/model"
)

// reportEventCount bounds the event tail the report prints
const reportEventCount = 20

// GenerateReport renders the overview as indented plain text for
// operator consumption.
func (m *Monitor) GenerateReport(ctx context.Context) string {
	data := m.GetMonitorData(ctx)

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline Report (%s)\n", data.GeneratedAt.Format(time.RFC3339))

	b.WriteString("\nBranches:\n")
	for _, branch := range model.Branches() {
		summary := data.Branches[branch]
		fmt.Fprintf(&b, "  %s\n", branch)
		fmt.Fprintf(&b, "    jobs:      %d total, %d enabled\n", summary.Total, summary.Enabled)
		fmt.Fprintf(&b, "    outcomes:  %d completed, %d failed, %d running\n",
			summary.Completed, summary.Failed, summary.Running)
		if summary.LastExecution != nil {
			fmt.Fprintf(&b, "    last run:  %s\n", summary.LastExecution.Format(time.RFC3339))
		} else {
			b.WriteString("    last run:  never\n")
		}
	}

	b.WriteString("\nBroker counters:\n")
	if len(data.Broker) == 0 {
		b.WriteString("  unavailable\n")
	} else {
		states := make([]string, 0, len(data.Broker))
		for state := range data.Broker {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			fmt.Fprintf(&b, "  %-10s %d\n", state, data.Broker[state])
		}
	}

	b.WriteString("\nQueue depths:\n")
	if len(data.Queues) == 0 {
		b.WriteString("  unavailable\n")
	} else {
		queues := make([]string, 0, len(data.Queues))
		for queue := range data.Queues {
			queues = append(queues, queue)
		}
		sort.Strings(queues)
		for _, queue := range queues {
			fmt.Fprintf(&b, "  %-20s %d\n", queue, data.Queues[queue])
		}
	}

	fmt.Fprintf(&b, "\nHeap: %s (%.0f%% of %s in use)\n",
		data.Heap.Health,
		data.Heap.UsedRatio*100,
		formatBytes(data.Heap.SysBytes),
	)

	b.WriteString("\nRecent events:\n")
	if len(data.RecentEvents) == 0 {
		b.WriteString("  none\n")
	} else {
		events := data.RecentEvents
		if len(events) > reportEventCount {
			events = events[:reportEventCount]
		}
		for _, event := range events {
			fmt.Fprintf(&b, "  %s  %-17s %s", event.Timestamp.Format("15:04:05"), event.Type, eventSubject(event))
			if event.Duration != nil {
				fmt.Fprintf(&b, " (%s)", event.Duration.Round(time.Millisecond))
			}
			if event.Error != "" {
				fmt.Fprintf(&b, " error=%q", event.Error)
			}
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func eventSubject(event model.Event) string {
	if event.JobID != "" {
		return event.JobID
	}
	return string(event.Branch)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
