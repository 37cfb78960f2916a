package storyboard

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"scriptreel/internal/capability"
	"scriptreel/internal/script"
)

const (
	pageMargin  = 15.0
	frameHeight = 80.0
	lineHeight  = 5.5
)

// Options controls storyboard rendering.
type Options struct {
	Title string
	// Images maps scene numbers to reference image locations. Local paths
	// and file:// URLs are embedded; anything else is listed as text.
	Images map[int]string
}

// Render writes the storyboard PDF for scenes to w.
func Render(w io.Writer, scenes []script.Scene, opts Options) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Storyboard"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("scriptreel", false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s  |  page %d", fold(title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, fold(title), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, lineHeight, fmt.Sprintf("%d scenes", len(scenes)), "", "L", false)
	pdf.Ln(4)

	for _, sc := range scenes {
		renderScene(pdf, sc, opts.Images[sc.Number])
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("storyboard: %w", err)
	}
	return pdf.Output(w)
}

// WriteFile renders the storyboard to path, creating its directory.
func WriteFile(path string, scenes []script.Scene, opts Options) error {
	var buf bytes.Buffer
	if err := Render(&buf, scenes, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure storyboard dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write storyboard: %w", err)
	}
	return nil
}

func renderScene(pdf *gofpdf.Fpdf, sc script.Scene, image string) {
	width, pageHeight := pdf.GetPageSize()
	usable := width - 2*pageMargin
	if pdf.GetY()+frameHeight+4*lineHeight > pageHeight-pageMargin {
		pdf.AddPage()
	}

	header := fmt.Sprintf("Scene %d", sc.Number)
	if sc.Heading != "" {
		header += ": " + sc.Heading
	}
	pdf.SetFillColor(230, 230, 230)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(usable, 8, fold(header), "", 1, "L", true, 0, "")
	pdf.Ln(1)

	x, y := pdf.GetX(), pdf.GetY()
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.3)
	pdf.Rect(x, y, usable, frameHeight, "D")
	if !embedImage(pdf, image, x, y, usable) {
		pdf.SetXY(x+3, y+3)
		pdf.SetFont("Helvetica", "I", 9)
		placeholder := sc.Description
		if placeholder == "" {
			placeholder = "(no description)"
		}
		if image != "" {
			placeholder += "\nReference: " + image
		}
		pdf.MultiCell(usable-6, lineHeight, fold(placeholder), "", "L", false)
	}
	pdf.SetXY(x, y+frameHeight+2)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range sc.Dialogues {
		speaker := strings.ToUpper(line.Character)
		if line.Parenthetical != "" {
			speaker += " (" + line.Parenthetical + ")"
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(usable, lineHeight, fold(speaker), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetX(x + 8)
		pdf.MultiCell(usable-8, lineHeight, fold(line.Text), "", "L", false)
	}
	pdf.SetFont("Helvetica", "I", 9)
	for _, cue := range sc.SoundCues {
		pdf.MultiCell(usable, lineHeight, fold(strings.ToUpper(string(cue.Kind))+": "+cue.Description), "", "L", false)
	}
	if len(sc.CameraMovements) > 0 {
		pdf.MultiCell(usable, lineHeight, fold("Camera: "+strings.Join(sc.CameraMovements, ", ")), "", "L", false)
	}
	if len(sc.TransitionsOut) > 0 {
		pdf.MultiCell(usable, lineHeight, fold(strings.Join(sc.TransitionsOut, " ")), "", "R", false)
	}
	pdf.Ln(4)
}

// embedImage draws a local image inside the frame. It reports false when
// the image is remote, unreadable or not a format gofpdf supports.
func embedImage(pdf *gofpdf.Fpdf, location string, x, y, width float64) bool {
	if location == "" {
		return false
	}
	path := location
	if local, ok := capability.LocalPath(location); ok {
		path = local
	} else if strings.Contains(location, "://") {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	_, ext := capability.Sniff(data)
	imageType := strings.TrimPrefix(ext, ".")
	switch imageType {
	case "jpeg":
		imageType = "jpg"
	case "png", "jpg", "gif":
	default:
		return false
	}
	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader(path, opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		pdf.ClearError()
		return false
	}
	w, h := info.Width(), info.Height()
	if w <= 0 || h <= 0 {
		return false
	}
	scale := min(width/w, frameHeight/h)
	dw, dh := w*scale, h*scale
	pdf.ImageOptions(path, x+(width-dw)/2, y+(frameHeight-dh)/2, dw, dh, false, opts, 0, "")
	return true
}
