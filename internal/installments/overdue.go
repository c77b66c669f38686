package installments

import "time"

// MarkOverdue returns the pending installments of list whose due date falls
// strictly before asOf's calendar day, with their status set to overdue.
// Installments in any other status are never touched.
func MarkOverdue(list []Installment, asOf time.Time) []Installment {
	cutoff := dateOnly(asOf)
	var out []Installment
	for _, inst := range list {
		switch inst.Status {
		case StatusPending:
			if dateOnly(inst.DueDate).Before(cutoff) {
				inst.Status = StatusOverdue
				out = append(out, inst)
			}
		case StatusPaid, StatusOverdue, StatusCancelled:
		}
	}
	return out
}
