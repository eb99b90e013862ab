package models

import (
	"fmt"
	"strings"
)

// VehicleCategory запрошенный класс автомобиля. Внутри системы хранится
// только код, локализованные названия живут в таблице ниже.
type VehicleCategory string

const (
	VehicleSedan   VehicleCategory = "sedan"
	VehicleMinivan VehicleCategory = "minivan"
	VehicleMinibus VehicleCategory = "minibus"
)

// Categories все известные классы
var Categories = []VehicleCategory{VehicleSedan, VehicleMinivan, VehicleMinibus}

var categoryLabels = map[VehicleCategory]map[string]string{
	VehicleSedan: {
		"en": "Sedan",
		"ru": "Седан",
		"de": "Limousine",
	},
	VehicleMinivan: {
		"en": "Minivan",
		"ru": "Минивэн",
		"de": "Van",
	},
	VehicleMinibus: {
		"en": "Minibus",
		"ru": "Микроавтобус",
		"de": "Kleinbus",
	},
}

// Дополнительные написания, которые приходят от клиентов
var categoryAliases = map[string]VehicleCategory{
	"car":      VehicleSedan,
	"standard": VehicleSedan,
	"легковой": VehicleSedan,
	"pkw":      VehicleSedan,
	"van":      VehicleMinivan,
	"минивен":  VehicleMinivan,
	"bus":      VehicleMinibus,
	"sprinter": VehicleMinibus,
	"автобус":  VehicleMinibus,
}

var labelIndex = buildLabelIndex()

func buildLabelIndex() map[string]VehicleCategory {
	idx := make(map[string]VehicleCategory)
	for cat, labels := range categoryLabels {
		idx[string(cat)] = cat
		for _, l := range labels {
			idx[strings.ToLower(l)] = cat
		}
	}
	for alias, cat := range categoryAliases {
		idx[alias] = cat
	}
	return idx
}

// ParseVehicleCategory переводит внешнее название класса в код
func ParseVehicleCategory(label string) (VehicleCategory, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	if cat, ok := labelIndex[key]; ok {
		return cat, nil
	}
	return "", fmt.Errorf("неизвестный класс автомобиля: %q, допустимы %v", label, Categories)
}

// Label возвращает название класса на нужном языке, по умолчанию английское
func (c VehicleCategory) Label(locale string) string {
	labels, ok := categoryLabels[c]
	if !ok {
		return string(c)
	}
	if l, ok := labels[locale]; ok {
		return l
	}
	return labels["en"]
}

func (c VehicleCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}
