package dataset

import (
	"strings"

	"github.com/instantcocoa/verdict/eval"
)

// Expand turns one conversation record into evaluable items, one per
// turn spoken by targetRole. Each item snapshots the accumulated
// history up to and including the target turn, whose text doubles as
// the reference output. A non-empty meta description is prepended as
// the system message; "human" turns map to the "user" role.
func Expand(rec ConversationRecord, targetRole string) []eval.Item {
	var history []eval.Message
	if desc := strings.TrimSpace(rec.Meta.MetaDescription); desc != "" {
		history = append(history, eval.Message{Role: "system", Content: desc})
	}

	target := strings.ToLower(targetRole)
	var items []eval.Item

	for _, turn := range rec.Turns {
		switch strings.ToLower(turn.Role) {
		case "human":
			history = append(history, eval.Message{Role: "user", Content: turn.Text})
		case target:
			history = append(history, eval.Message{Role: targetRole, Content: turn.Text})
			snapshot := make([]eval.Message, len(history))
			copy(snapshot, history)
			items = append(items, eval.Item{
				ExpandedIndex: len(items),
				Messages:      snapshot,
				Reference:     turn.Text,
			})
		default:
			history = append(history, eval.Message{Role: turn.Role, Content: turn.Text})
		}
	}
	return items
}

// ExpandAll expands every record in order, assigning each item its
// global index in the flattened sequence and the index of the record
// it came from. A positive sampleSize truncates the record list before
// expansion.
func ExpandAll(records []ConversationRecord, targetRole string, sampleSize int) []eval.Item {
	if sampleSize > 0 && len(records) > sampleSize {
		records = records[:sampleSize]
	}

	var items []eval.Item
	for origIdx, rec := range records {
		for _, item := range Expand(rec, targetRole) {
			item.OriginalIndex = origIdx
			item.GlobalIndex = len(items)
			items = append(items, item)
		}
	}
	return items
}
