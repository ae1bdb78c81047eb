// Package models содержит доменные структуры клиента подписок: предложения
// тарифов, снимок подписки пользователя, записи о зачислении на курсы и
// состояние для слоя отображения.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// BillingInterval: период списания по тарифу.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// ParseInterval приводит строку сервера к BillingInterval.
func ParseInterval(s string) (BillingInterval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "monthly":
		return IntervalMonth, nil
	case "year", "yearly", "annual":
		return IntervalYear, nil
	default:
		return "", fmt.Errorf("unknown billing interval %q", s)
	}
}

// Money: сумма в минимальных единицах валюты (центы, копейки).
type Money struct {
	Amount   int64  // Сумма в минимальных единицах
	Currency string // Код валюты ISO 4217
}

// Decimal возвращает сумму в основных единицах, например 9.99.
func (m Money) Decimal() float64 {
	return float64(m.Amount) / 100
}

// MoneyFromDecimal переводит десятичную цену сервера в минимальные единицы.
func MoneyFromDecimal(value float64, currency string) Money {
	return Money{
		Amount:   int64(math.Round(value * 100)),
		Currency: strings.ToUpper(currency),
	}
}

// ErrNegativePrice: цена тарифа меньше нуля.
var ErrNegativePrice = errors.New("plan price must not be negative")

// PlanOffer описывает предложение тарифа из каталога. Неизменяемо после
// получения, идентифицируется по PlanType.
type PlanOffer struct {
	ID              string
	PlanType        string
	DisplayName     string
	Price           Money
	BillingInterval BillingInterval
	Features        []string
}

// Validate проверяет инварианты предложения.
func (p PlanOffer) Validate() error {
	if p.PlanType == "" {
		return errors.New("plan type is required")
	}
	if p.Price.Amount < 0 {
		return ErrNegativePrice
	}
	if p.BillingInterval != IntervalMonth && p.BillingInterval != IntervalYear {
		return fmt.Errorf("plan %s: unknown billing interval %q", p.PlanType, p.BillingInterval)
	}
	return nil
}

// planWire: представление тарифа в API платформы.
type planWire struct {
	ID          string   `json:"id"`
	PlanType    string   `json:"planType"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval"`
	Features    []string `json:"features"`
}

// UnmarshalJSON принимает цену десятичным числом и интервал в свободной форме.
func (p *PlanOffer) UnmarshalJSON(data []byte) error {
	var w planWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	interval, err := ParseInterval(w.Interval)
	if err != nil {
		return err
	}
	name := w.Name
	if name == "" {
		name = w.DisplayName
	}
	planType := w.PlanType
	if planType == "" {
		planType = w.ID
	}
	*p = PlanOffer{
		ID:              w.ID,
		PlanType:        planType,
		DisplayName:     name,
		Price:           MoneyFromDecimal(w.Price, w.Currency),
		BillingInterval: interval,
		Features:        w.Features,
	}
	return nil
}

// MarshalJSON отдаёт тариф в том же виде, в каком его присылает платформа.
func (p PlanOffer) MarshalJSON() ([]byte, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return json.Marshal(planWire{
		ID:       p.ID,
		PlanType: p.PlanType,
		Name:     p.DisplayName,
		Price:    p.Price.Decimal(),
		Currency: p.Price.Currency,
		Interval: string(p.BillingInterval),
		Features: features,
	})
}
