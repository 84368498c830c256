package consult

import "advisory.org/internal/stablemem"

// Largest encodings each collection reserves per record.
const (
	MaxAdvisorSize      = 1024
	MaxConsultationSize = 1024
	MaxFeedbackSize     = 2048
	MaxTimelineSize     = 512
	maxSchemaMetaSize   = 4096
)

var (
	AdvisorCodec      = stablemem.MustCBORCodec[Advisor](MaxAdvisorSize)
	ConsultationCodec = stablemem.MustCBORCodec[Consultation](MaxConsultationSize)
	FeedbackCodec     = stablemem.MustCBORCodec[FeedbackRecord](MaxFeedbackSize)
	TimelineCodec     = stablemem.MustCBORCodec[TimelineEvent](MaxTimelineSize)
	schemaMetaCodec   = stablemem.MustCBORCodec[SchemaMeta](maxSchemaMetaSize)
)
