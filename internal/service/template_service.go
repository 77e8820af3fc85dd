package service

import (
	"strings"

	"github.com/unclebandit/drip-engine/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RenderStep fills {name} and {tag} in a step message for one contact.
// Unknown placeholders are left as written.
func RenderStep(message string, c *model.Contact) string {
	return RenderTemplate(message, map[string]string{
		"name": c.Name,
		"tag":  c.Tag,
	})
}
