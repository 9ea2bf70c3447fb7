package classifier

import (
	"strings"

	"github.com/guardiannet/dispatch/internal/models"
)

// fallbackRules проверяются по порядку, первое совпадение побеждает
var fallbackRules = []struct {
	service  models.ServiceType
	keywords []string
}{
	{models.ServiceFirebrigade, []string{"fire", "smoke", "burning", "flame", "blaze", "explosion"}},
	{models.ServicePolice, []string{"robbery", "theft", "crime", "violence", "assault", "weapon", "fight", "shooting"}},
	{models.ServiceHospital, []string{"heart attack", "stroke", "overdose", "unconscious", "critical"}},
}

// Fallback классифицирует описание по ключевым словам.
// Без совпадений (и для пустого описания) возвращает ambulance.
func Fallback(description string) models.ServiceType {
	text := strings.ToLower(description)
	if strings.TrimSpace(text) == "" {
		return models.ServiceAmbulance
	}

	for _, rule := range fallbackRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return rule.service
			}
		}
	}
	return models.ServiceAmbulance
}

// reportText возвращает текст для классификации: описание или текстовые вложения
func reportText(description string, media []models.Media) string {
	if strings.TrimSpace(description) != "" {
		return description
	}

	parts := make([]string, 0, len(media))
	for _, m := range media {
		if m.Kind == models.MediaText && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}
