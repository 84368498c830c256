package consult

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *Stable) GenerateConsultationReport(ctx context.Context, id uint64) (report string, err error) {
	defer observe("generate_consultation_report", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.store.consultations.Get(id)
	if !ok {
		return "", notFound(consultationEntity, id)
	}
	return FormatReport(c), nil
}

// FormatReport renders the fixed-field summary of a consultation.
func FormatReport(c Consultation) string {
	closed := "open"
	if c.ClosedAt != nil {
		closed = fmt.Sprintf("%d", *c.ClosedAt)
	}
	var b strings.Builder
	b.WriteString("Consultation Report\n")
	fmt.Fprintf(&b, "ID: %d\n", c.ID)
	fmt.Fprintf(&b, "Advisor ID: %d\n", c.AdvisorID)
	fmt.Fprintf(&b, "User ID: %d\n", c.UserID)
	fmt.Fprintf(&b, "Client: %s <%s>\n", c.ClientName, c.ClientEmail)
	fmt.Fprintf(&b, "Details: %s\n", c.Details)
	fmt.Fprintf(&b, "Created At: %d\n", c.CreatedAt)
	fmt.Fprintf(&b, "Closed At: %s\n", closed)
	fmt.Fprintf(&b, "Completed: %t\n", c.IsCompleted)
	return b.String()
}
