package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

type ChargeStatus string

const (
	ChargePending    ChargeStatus = "pending"
	ChargeSuccessful ChargeStatus = "successful"
	ChargeFailed     ChargeStatus = "failed"
	ChargeExpired    ChargeStatus = "expired"
)

// Charge списание у платежного провайдера. ID служит идентификатором
// платежной сессии.
type Charge struct {
	ID          string
	BookingID   string
	Amount      int64
	Currency    string
	Status      ChargeStatus
	FailureCode string
}

type ChargeRequest struct {
	BookingID string
	Amount    int64
	Currency  string
	// Token токен карты (tokn_) или источника оплаты (src_)
	Token string
}

// GatewayEvent событие провайдера, перечитанное у него же
type GatewayEvent struct {
	ID     string
	Key    string
	Charge *Charge
}

// PaymentGateway платежный провайдер
type PaymentGateway interface {
	CreateCharge(ctx context.Context, in ChargeRequest) (*Charge, error)
	RetrieveCharge(ctx context.Context, id string) (*Charge, error)
	RetrieveEvent(ctx context.Context, id string) (*GatewayEvent, error)
}

// Предел на один запрос к провайдеру, даже если ctx без дедлайна
const omiseRequestTimeout = 20 * time.Second

// OmiseGateway PaymentGateway поверх omise-go
type OmiseGateway struct {
	client *omise.Client
}

func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	c.Client.Timeout = omiseRequestTimeout
	return &OmiseGateway{client: c}, nil
}

// with копия клиента под один вызов. WithContext меняет клиента,
// общий экземпляр трогать нельзя.
func (g *OmiseGateway) with(ctx context.Context) *omise.Client {
	c := *g.client
	c.WithContext(ctx)
	return &c
}

func (g *OmiseGateway) CreateCharge(ctx context.Context, in ChargeRequest) (*Charge, error) {
	req := &operations.CreateCharge{
		Amount:   in.Amount,
		Currency: in.Currency,
		Metadata: map[string]interface{}{"booking_id": in.BookingID},
	}
	if strings.HasPrefix(in.Token, "src_") {
		req.Source = in.Token
	} else {
		req.Card = in.Token
	}

	ch := &omise.Charge{}
	if err := g.with(ctx).Do(ch, req); err != nil {
		return nil, fmt.Errorf("omise create charge: %w", err)
	}
	return fromOmiseCharge(ch), nil
}

func (g *OmiseGateway) RetrieveCharge(ctx context.Context, id string) (*Charge, error) {
	ch := &omise.Charge{}
	if err := g.with(ctx).Do(ch, &operations.RetrieveCharge{ChargeID: id}); err != nil {
		return nil, fmt.Errorf("omise retrieve charge %s: %w", id, err)
	}
	return fromOmiseCharge(ch), nil
}

// RetrieveEvent перечитывает событие у провайдера, поэтому подделанный
// вебхук ничего не подтвердит
func (g *OmiseGateway) RetrieveEvent(ctx context.Context, id string) (*GatewayEvent, error) {
	ev := &omise.Event{}
	if err := g.with(ctx).Do(ev, &operations.RetrieveEvent{EventID: id}); err != nil {
		return nil, fmt.Errorf("omise retrieve event %s: %w", id, err)
	}

	out := &GatewayEvent{ID: id, Key: ev.Key}
	if !strings.HasPrefix(ev.Key, "charge.") {
		return out, nil
	}
	// ev.Data приходит как interface{}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("omise event data: %w", err)
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("omise event charge: %w", err)
	}
	out.Charge = fromOmiseCharge(&ch)
	return out, nil
}

func fromOmiseCharge(ch *omise.Charge) *Charge {
	bookingID, _ := ch.Metadata["booking_id"].(string)
	out := &Charge{
		ID:        ch.ID,
		BookingID: bookingID,
		Amount:    ch.Amount,
		Currency:  ch.Currency,
		Status:    ChargeStatus(ch.Status),
	}
	if ch.FailureCode != nil {
		out.FailureCode = *ch.FailureCode
	}
	return out
}
