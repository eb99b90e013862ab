// Package matching подбирает водителей, которым можно показать заказ.
package matching

import (
	"sort"

	"transfer-backend/internal/models"
)

// Какие типы автомобилей могут обслужить класс заказа.
// Седан и минивэн взаимозаменяемы, микроавтобус только сам по себе.
var compatibility = map[models.VehicleCategory][]models.VehicleCategory{
	models.VehicleSedan:   {models.VehicleSedan, models.VehicleMinivan},
	models.VehicleMinivan: {models.VehicleMinivan, models.VehicleSedan},
	models.VehicleMinibus: {models.VehicleMinibus},
}

// Compatible сообщает, может ли автомобиль vehicle выполнить заказ класса category
func Compatible(vehicle, category models.VehicleCategory) bool {
	for _, v := range compatibility[category] {
		if v == vehicle {
			return true
		}
	}
	return false
}

// AllowedVehicles типы автомобилей, подходящие под класс
func AllowedVehicles(category models.VehicleCategory) []models.VehicleCategory {
	return append([]models.VehicleCategory(nil), compatibility[category]...)
}

// CanServe проверяет водителя целиком: документы одобрены и тип подходит
func CanServe(driver *models.User, category models.VehicleCategory) bool {
	vehicle, ok := driver.VehicleType()
	if !ok {
		return false
	}
	return Compatible(vehicle, category)
}

// Eligible оставляет подключенных водителей с подходящим одобренным автомобилем.
// Порядок результата стабилен (по ID), чтобы рассылка была воспроизводимой.
func Eligible(drivers []models.User, online []uint, category models.VehicleCategory) []models.User {
	connected := make(map[uint]struct{}, len(online))
	for _, id := range online {
		connected[id] = struct{}{}
	}

	var out []models.User
	for i := range drivers {
		d := drivers[i]
		if _, ok := connected[d.ID]; !ok {
			continue
		}
		if !CanServe(&d, category) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs достает идентификаторы водителей
func IDs(drivers []models.User) []uint {
	ids := make([]uint, 0, len(drivers))
	for _, d := range drivers {
		ids = append(ids, d.ID)
	}
	return ids
}
