package printer

import (
	"context"

	"github.com/meeteat/pos/internal/receipt"
)

// Service prints bill summaries: format, wrap in device commands, send.
type Service struct {
	layout    receipt.Layout
	codePage  CodePage
	feedLines int
	sender    Sender
}

// NewService creates a Service. The layout's title and closing are printed
// by the device stream, not the body.
func NewService(layout receipt.Layout, codePage CodePage, feedLines int, sender Sender) *Service {
	return &Service{layout: layout, codePage: codePage, feedLines: feedLines, sender: sender}
}

// Render returns the command stream for summary without sending it.
func (s *Service) Render(summary receipt.Summary) ([]byte, error) {
	layout := s.layout
	layout.OmitBranding = true

	body, err := receipt.Format(summary, layout)
	if err != nil {
		return nil, err
	}
	return Build(Job{
		Title:     s.layout.Title,
		Body:      body,
		Closing:   s.layout.Closing,
		FeedLines: s.feedLines,
		CodePage:  s.codePage,
	})
}

// Print renders summary and sends it to printerName.
func (s *Service) Print(ctx context.Context, printerName string, summary receipt.Summary) error {
	data, err := s.Render(summary)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, printerName, data)
}
