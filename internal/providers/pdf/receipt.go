package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData holds preformatted values; amounts are rendered as given.
type ReceiptData struct {
	StudioName      string
	ReceiptNumber   string
	DatePaid        string
	MemberName      string
	MemberEmail     string
	SubscriptionID  string
	PlanName        string
	PaymentMethod   string
	ReferenceNumber string
	Notes           string
	Amount          string
	RefundedAmount  string
	BalanceDue      string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, receipt.StudioName, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 4}),
			text.New("Subscription: "+receipt.SubscriptionID, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Member", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.MemberName, props.Text{Top: 5}),
			text.New(receipt.MemberEmail, props.Text{Top: 9}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Method", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(15,
		text.NewCol(6, receipt.PlanName, props.Text{Size: 9}),
		text.NewCol(3, receipt.PaymentMethod, props.Text{Size: 9}),
		text.NewCol(3, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	if receipt.ReferenceNumber != "" {
		m.AddRow(8, text.NewCol(12, "Reference: "+receipt.ReferenceNumber, props.Text{Size: 9}))
	}
	if receipt.Notes != "" {
		m.AddRow(8, text.NewCol(12, receipt.Notes, props.Text{Size: 9}))
	}

	if receipt.RefundedAmount != "" {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, "Refunded", props.Text{Size: 9}),
			text.NewCol(2, receipt.RefundedAmount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Balance due", props.Text{Size: 9}),
		text.NewCol(2, receipt.BalanceDue, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
