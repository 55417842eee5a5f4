package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PhonePeCallback is the decoded "response" field of a phonepe server callback.
type PhonePeCallback struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// DecodePhonePeCallback reads {"response": "<base64 json>"} and returns the raw base64 payload
// (the bytes the checksum covers) with the decoded callback.
func DecodePhonePeCallback(body []byte) ([]byte, PhonePeCallback, error) {
	var envelope struct {
		Response string `json:"response"`
	}
	var cb PhonePeCallback
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, cb, fmt.Errorf("decode phonepe envelope: %w", err)
	}
	if envelope.Response == "" {
		return nil, cb, fmt.Errorf("phonepe callback without response")
	}
	raw, err := base64.StdEncoding.DecodeString(envelope.Response)
	if err != nil {
		return nil, cb, fmt.Errorf("decode phonepe response: %w", err)
	}
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, cb, fmt.Errorf("decode phonepe payload: %w", err)
	}
	return []byte(envelope.Response), cb, nil
}

func (cb PhonePeCallback) Captured() bool {
	return cb.Code == "PAYMENT_SUCCESS"
}
