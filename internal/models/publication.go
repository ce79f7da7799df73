// Package models defines the data shared between the crawler, the pipeline and storage.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDefendant is the party every RPV record is filed against.
const DefaultDefendant = "Instituto Nacional do Seguro Social - INSS"

// AttorneySeparator joins the attorney list for storage.
const AttorneySeparator = "; "

// ErrInvalidStatus is returned for a status outside the workflow enum.
var ErrInvalidStatus = errors.New("invalid status")

// Status is the workflow state of a stored publication.
type Status string

// Workflow statuses, matching the status_enum type.
const (
	StatusNew       Status = "nova"
	StatusRead      Status = "lida"
	StatusSent      Status = "enviada"
	StatusProcessed Status = "processada"
)

// Statuses lists every valid status in workflow order.
func Statuses() []Status {
	return []Status{StatusNew, StatusRead, StatusSent, StatusProcessed}
}

// ParseStatus validates s against the workflow enum.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// InterestState distinguishes an explicitly waived interest from one never mentioned.
type InterestState int

// Interest states.
const (
	InterestNotMentioned InterestState = iota
	InterestWaived
	InterestStated
)

// String returns the state name.
func (s InterestState) String() string {
	switch s {
	case InterestWaived:
		return "waived"
	case InterestStated:
		return "stated"
	default:
		return "not_mentioned"
	}
}

// CaseRecord is the structured output of the extraction pipeline.
type CaseRecord struct {
	FilingDate             time.Time           `json:"filingDate"`
	CaseNumber             *string             `json:"caseNumber"`
	Plaintiff              *string             `json:"plaintiff"`
	Principal              decimal.NullDecimal `json:"principal"`
	Interest               decimal.NullDecimal `json:"interest"`
	Fees                   decimal.NullDecimal `json:"fees"`
	Defendant              string              `json:"defendant"`
	FullText               string              `json:"-"`
	Attorneys              []string            `json:"attorneys"`
	Source                 []Locator           `json:"source,omitempty"`
	InterestState          InterestState       `json:"interestState"`
	PlaintiffLowConfidence bool                `json:"plaintiffLowConfidence"`
	Valid                  bool                `json:"valid"`
}

// Attorney returns the attorney list joined for storage, or nil when empty.
func (r *CaseRecord) Attorney() *string {
	if len(r.Attorneys) == 0 {
		return nil
	}

	joined := strings.Join(r.Attorneys, AttorneySeparator)

	return &joined
}

// HasNaturalKey reports whether both dedup key fields are present.
func (r *CaseRecord) HasNaturalKey() bool {
	return r.CaseNumber != nil && *r.CaseNumber != "" && !r.FilingDate.IsZero()
}

// Publication is one row of the publicacoes table.
type Publication struct {
	CreatedAt  time.Time           `db:"data_criacao" json:"dataCriacao"`
	UpdatedAt  *time.Time          `db:"data_atualizacao" json:"dataAtualizacao"`
	FilingDate time.Time           `db:"data_disponibilizacao" json:"dataDisponibilizacao"`
	CaseNumber *string             `db:"numero_processo" json:"numeroProcesso"`
	Plaintiff  *string             `db:"autor" json:"autor"`
	Attorney   *string             `db:"advogado" json:"advogado"`
	Principal  decimal.NullDecimal `db:"valor_principal" json:"valorPrincipal"`
	Interest   decimal.NullDecimal `db:"valor_juros_moratorios" json:"valorJurosMoratorios"`
	Fees       decimal.NullDecimal `db:"honorarios_advocaticios" json:"honorariosAdvocaticios"`
	Defendant  string              `db:"reu" json:"reu"`
	FullText   string              `db:"conteudo_completo" json:"conteudoCompleto"`
	Status     Status              `db:"status" json:"status"`
	ID         int64               `db:"id" json:"id"`
}

// NewPublication maps a case record to a new row with status nova.
func NewPublication(r *CaseRecord) *Publication {
	defendant := r.Defendant
	if defendant == "" {
		defendant = DefaultDefendant
	}

	return &Publication{
		CaseNumber: r.CaseNumber,
		FilingDate: r.FilingDate,
		Plaintiff:  r.Plaintiff,
		Defendant:  defendant,
		Attorney:   r.Attorney(),
		Principal:  r.Principal,
		Interest:   r.Interest,
		Fees:       r.Fees,
		FullText:   r.FullText,
		Status:     StatusNew,
	}
}

// CaseNumberOrEmpty returns the case number or an empty string.
func (p *Publication) CaseNumberOrEmpty() string {
	if p.CaseNumber == nil {
		return ""
	}

	return *p.CaseNumber
}
