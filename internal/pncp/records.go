package pncp

import (
	"path"
	"slices"
	"strings"
	"time"

	"github.com/licitaradar/licitaradar/internal/model"
)

// PortalZone is the offset of the naive timestamps the portal returns.
var PortalZone = time.FixedZone("BRT", -3*60*60)

type pageResponse struct {
	Data          []rawRecord `json:"data"`
	TotalPaginas  int         `json:"totalPaginas"`
	NumeroPagina  int         `json:"numeroPagina"`
	TotalRegistro int         `json:"totalRegistros"`
}

type rawRecord struct {
	NumeroControlePNCP string   `json:"numeroControlePNCP"`
	AnoCompra          int      `json:"anoCompra"`
	SequencialCompra   int      `json:"sequencialCompra"`
	ValorTotalEstimado *float64 `json:"valorTotalEstimado"`
	DataPublicacaoPncp string   `json:"dataPublicacaoPncp"`
	DataAtualizacao    string   `json:"dataAtualizacao"`
	ObjetoCompra       string   `json:"objetoCompra"`
	ModalidadeNome     string   `json:"modalidadeNome"`
	SituacaoCompraNome string   `json:"situacaoCompraNome"`
	LinkSistemaOrigem  string   `json:"linkSistemaOrigem"`
	OrgaoEntidade      struct {
		CNPJ        string `json:"cnpj"`
		RazaoSocial string `json:"razaoSocial"`
	} `json:"orgaoEntidade"`
	UnidadeOrgao struct {
		UFSigla       string `json:"ufSigla"`
		MunicipioNome string `json:"municipioNome"`
	} `json:"unidadeOrgao"`
}

func (r rawRecord) toModel() model.Procurement {
	p := model.Procurement{
		ControlNumber: strings.TrimSpace(r.NumeroControlePNCP),
		EntityCNPJ:    r.OrgaoEntidade.CNPJ,
		EntityName:    r.OrgaoEntidade.RazaoSocial,
		Year:          r.AnoCompra,
		Sequence:      r.SequencialCompra,
		State:         strings.ToUpper(strings.TrimSpace(r.UnidadeOrgao.UFSigla)),
		City:          r.UnidadeOrgao.MunicipioNome,
		PublishedAt:   parsePortalTime(r.DataPublicacaoPncp),
		UpdatedAt:     parsePortalTime(r.DataAtualizacao),
		Description:   strings.TrimSpace(r.ObjetoCompra),
		Modality:      r.ModalidadeNome,
		Status:        r.SituacaoCompraNome,
		SourceLink:    r.LinkSistemaOrigem,
	}
	if r.ValorTotalEstimado != nil {
		p.EstimatedValue = *r.ValorTotalEstimado
	}
	return p
}

var portalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parsePortalTime accepts the timestamp shapes the portal emits. Unparseable
// values yield the zero time.
func parsePortalTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range portalLayouts {
		if t, err := time.ParseInLocation(layout, s, PortalZone); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Attachment is one file published with a procurement notice.
type Attachment struct {
	URL   string `json:"url"`
	Title string `json:"titulo"`
	Type  string `json:"tipoDocumentoNome"`
}

// IsPDF reports whether the title or URL ends in .pdf.
func (a Attachment) IsPDF() bool {
	for _, s := range []string{a.Title, a.URL} {
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(s)), ".pdf") {
			return true
		}
	}
	return false
}

var nonPDFExtensions = []string{
	".doc", ".docx", ".odt", ".rtf", ".txt",
	".xls", ".xlsx", ".ods", ".csv",
	".zip", ".rar", ".7z",
	".jpg", ".jpeg", ".png", ".dwg", ".xml", ".html",
}

// MaybePDF reports whether the attachment could be a PDF. The listing has
// no content types and file URLs usually end in a bare sequence number, so
// only names with a known non-PDF extension are ruled out. Callers confirm
// by content after downloading.
func (a Attachment) MaybePDF() bool {
	if a.IsPDF() {
		return true
	}
	for _, s := range []string{a.Title, a.URL} {
		if slices.Contains(nonPDFExtensions, strings.ToLower(path.Ext(strings.TrimSpace(s)))) {
			return false
		}
	}
	return true
}

type rawAttachment struct {
	URL               string `json:"url"`
	URI               string `json:"uri"`
	Titulo            string `json:"titulo"`
	Nome              string `json:"nome"`
	TipoDocumentoNome string `json:"tipoDocumentoNome"`
	StatusAtivo       *bool  `json:"statusAtivo"`
}

func (r rawAttachment) toAttachment() Attachment {
	a := Attachment{URL: r.URL, Title: r.Titulo, Type: r.TipoDocumentoNome}
	if a.URL == "" {
		a.URL = r.URI
	}
	if a.Title == "" {
		a.Title = r.Nome
	}
	return a
}
