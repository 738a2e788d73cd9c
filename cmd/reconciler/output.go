package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/reconciler/internal/events"
	"github.com/alfredjeanlab/reconciler/internal/model"
	"github.com/alfredjeanlab/reconciler/internal/ui"
)

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printAttemptTable(w io.Writer, attempts []*model.Attempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSEQUENCE\tOUTCOME\tPURCHASE\tBUYER\tDETAIL")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Format(time.DateTime),
			a.Sequence,
			ui.RenderOutcome(string(a.Outcome)),
			a.PurchaseID,
			shortAddress(a.Buyer),
			attemptDetail(a),
		)
	}
	tw.Flush()
}

// attemptDetail is the one-column summary of why an attempt ended the way
// it did.
func attemptDetail(a *model.Attempt) string {
	switch a.Outcome {
	case model.OutcomeGranted:
		return a.TxDigest
	case model.OutcomeSkipped:
		return a.Reason
	default:
		return a.Error
	}
}

// shortAddress abbreviates a 0x address to its first and last four digits.
func shortAddress(a model.Address) string {
	s := a.String()
	if len(s) <= 14 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}

// describeMessage renders one outcome message from the bus as a single
// line. Payloads that do not decode are shown raw.
func describeMessage(msg events.Message) string {
	topic := ui.RenderAccent(msg.Topic)
	switch msg.Topic {
	case events.TopicAccessGranted:
		var ev events.AccessGranted
		if json.Unmarshal(msg.Data, &ev) == nil && ev.Event != nil {
			return fmt.Sprintf("%s %s buyer=%s experience=%s tx=%s",
				topic, ui.RenderOutcome("granted"), shortAddress(ev.Event.Buyer), ev.Event.ExperienceID, ev.TxDigest)
		}
	case events.TopicAccessSkipped:
		var ev events.AccessSkipped
		if json.Unmarshal(msg.Data, &ev) == nil && ev.Event != nil {
			return fmt.Sprintf("%s %s buyer=%s experience=%s reason=%s",
				topic, ui.RenderOutcome("skipped"), shortAddress(ev.Event.Buyer), ev.Event.ExperienceID, ev.Reason)
		}
	case events.TopicEventFailed:
		var ev events.EventFailed
		if json.Unmarshal(msg.Data, &ev) == nil {
			seq := uint64(0)
			if ev.Event != nil {
				seq = ev.Event.Sequence
			}
			return fmt.Sprintf("%s %s sequence=%d error=%s", topic, ui.RenderOutcome("failed"), seq, ev.Error)
		}
	case events.TopicFetchFailed:
		var ev events.FetchFailed
		if json.Unmarshal(msg.Data, &ev) == nil {
			return fmt.Sprintf("%s %s error=%s", topic, ui.RenderOutcome("failed"), ev.Error)
		}
	}
	return fmt.Sprintf("%s %s", topic, string(msg.Data))
}
