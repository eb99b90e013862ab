package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"transfer-backend/internal/notify"
)

const fcmEndpoint = "https://fcm.googleapis.com/fcm/send"

// Ошибки FCM, после которых токен устройства больше не годится
var fcmInvalidTokenErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MismatchSenderId":    true,
}

// FirebaseService отправка пушей через FCM (legacy HTTP API)
type FirebaseService struct {
	serverKey string
	endpoint  string
	client    *http.Client
}

type fcmRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
	Priority        string            `json:"priority"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func NewFirebaseService(serverKey string) *FirebaseService {
	return &FirebaseService{
		serverKey: serverKey,
		endpoint:  fcmEndpoint,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoint подменяет адрес FCM, нужен в тестах
func (s *FirebaseService) WithEndpoint(url string) *FirebaseService {
	s.endpoint = url
	return s
}

// SendToTokens отправляет одно уведомление на все токены. Результаты идут
// в том же порядке, что и токены.
func (s *FirebaseService) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]notify.TokenResult, error) {
	if s.serverKey == "" {
		return nil, ErrPushNotConfigured
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(fcmRequest{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: title, Body: body},
		Data:            data,
		Priority:        "high",
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка при маршалинге данных: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании запроса: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("key=%s", s.serverKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка при отправке запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неуспешный статус ответа: %d", resp.StatusCode)
	}

	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ошибка при разборе ответа: %w", err)
	}

	results := make([]notify.TokenResult, len(tokens))
	for i, token := range tokens {
		results[i].Token = token
		if i >= len(out.Results) {
			continue
		}
		if code := out.Results[i].Error; code != "" {
			results[i].Invalid = fcmInvalidTokenErrors[code]
			results[i].Err = fmt.Errorf("fcm: %s", code)
		}
	}
	return results, nil
}
