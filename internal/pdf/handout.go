package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

const qrAlias = "signup-qr"

// Handout é o conteúdo do folheto impresso na recepção.
type Handout struct {
	ClinicName string
	URL        string
	ExpiresAt  time.Time
	// Location do horário impresso; nil usa UTC.
	Location *time.Location
}

// QRCodePNG gera o QR code do link em PNG quadrado de size pixels.
func QRCodePNG(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, errors.New("qrcode: url vazia")
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}

// BuildSignupHandout gera um A4 com título, QR code, link por extenso e validade.
func BuildSignupHandout(h Handout) ([]byte, error) {
	qr, err := QRCodePNG(h.URL, 512)
	if err != nil {
		return nil, err
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}

	doc := fpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(false, 20)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 20)
	doc.CellFormat(0, 12, tr(h.ClinicName), "", 1, "C", false, 0, "")
	doc.Ln(4)
	doc.SetFont("Helvetica", "", 13)
	doc.MultiCell(0, 7, tr("Aponte a câmera do celular para o código abaixo e preencha seu cadastro de paciente. "+
		"Suas respostas ficam salvas enquanto você digita."), "", "C", false)
	doc.Ln(6)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader(qrAlias, opts, bytes.NewReader(qr))
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("register qr image: %w", err)
	}
	const side = 90.0
	pageW, _ := doc.GetPageSize()
	y := doc.GetY()
	doc.ImageOptions(qrAlias, (pageW-side)/2, y, side, side, false, opts, 0, "")
	doc.SetY(y + side + 6)

	doc.SetFont("Helvetica", "", 10)
	doc.MultiCell(0, 6, tr("Ou acesse: ")+h.URL, "", "C", false)
	doc.Ln(4)
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(0, 7, tr("Link válido até "+h.ExpiresAt.In(loc).Format("02/01/2006 às 15:04")), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
