package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/brojonat/zviewer/service/privacy"
	"github.com/shopspring/decimal"
)

// dashboardResponse is GET /dashboards/address/{address}.
type dashboardResponse struct {
	Data map[string]addressDashboard `json:"data"`
}

type addressDashboard struct {
	Transactions []string `json:"transactions"`
}

// rawTransactionResponse is GET /raw/transaction/{id}. Data is either the
// transaction object itself or an object keyed by id whose value carries
// decoded_raw_transaction.
type rawTransactionResponse struct {
	Data json.RawMessage `json:"data"`
}

type rawTransactionEnvelope struct {
	DecodedRawTransaction *rawTransaction `json:"decoded_raw_transaction"`
}

type rawTransaction struct {
	TxID     string      `json:"txid"`
	Hash     string      `json:"hash"`
	ValueOut *float64    `json:"valueOut"`
	Vout     []rawOutput `json:"vout"`
}

type rawOutput struct {
	Value               *float64      `json:"value"`    // ZEC
	ValueZat            *int64        `json:"valueZat"` // zatoshi
	ScriptPubKeyAddress *string       `json:"scriptpubkey_address"`
	ScriptPubKey        *scriptPubKey `json:"scriptPubKey"`
}

type scriptPubKey struct {
	Addresses []string `json:"addresses"`
}

// decodeTransaction converts the data field of a raw transaction response
// into the domain model.
func decodeTransaction(id string, data json.RawMessage) (*privacy.Transaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, ErrMissingData
	}

	var direct rawTransaction
	if err := json.Unmarshal(data, &direct); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if direct.TxID != "" || direct.Hash != "" || direct.Vout != nil {
		return direct.toDomain(), nil
	}

	var keyed map[string]rawTransactionEnvelope
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if env, ok := keyed[id]; ok && env.DecodedRawTransaction != nil {
		return env.DecodedRawTransaction.toDomain(), nil
	}
	for _, env := range keyed {
		if env.DecodedRawTransaction != nil {
			return env.DecodedRawTransaction.toDomain(), nil
		}
	}
	return nil, ErrMissingData
}

func (t *rawTransaction) toDomain() *privacy.Transaction {
	tx := &privacy.Transaction{
		ID:      t.TxID,
		Outputs: make([]privacy.Output, 0, len(t.Vout)),
	}
	if tx.ID == "" {
		tx.ID = t.Hash
	}
	if t.ValueOut != nil {
		tx.TotalOutputValue = *t.ValueOut
	}
	for _, v := range t.Vout {
		tx.Outputs = append(tx.Outputs, v.toDomain())
	}
	return tx
}

func (o rawOutput) toDomain() privacy.Output {
	out := privacy.Output{Address: o.address()}
	switch {
	case o.ValueZat != nil:
		out.Value = *o.ValueZat
	case o.Value != nil:
		out.Value = decimal.NewFromFloat(*o.Value).Shift(8).Round(0).IntPart()
	}
	return out
}

// address prefers the flat scriptpubkey_address field and falls back to the
// first entry of scriptPubKey.addresses.
func (o rawOutput) address() *string {
	if o.ScriptPubKeyAddress != nil && *o.ScriptPubKeyAddress != "" {
		addr := *o.ScriptPubKeyAddress
		return &addr
	}
	if o.ScriptPubKey != nil && len(o.ScriptPubKey.Addresses) > 0 {
		addr := o.ScriptPubKey.Addresses[0]
		return &addr
	}
	return nil
}
