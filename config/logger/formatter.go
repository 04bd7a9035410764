// Package logger configures logrus and implements a formatter that prefixes
// log messages with the scene name.
package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// NamespaceFormatter is a logrus formatter that adds the 'scene' field, and
// the 'client' field if present, to a log prefix for nicer formatted text
// output.
type NamespaceFormatter struct {
	Parent logrus.Formatter
}

// Format implements logrus.Formatter
func (f *NamespaceFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	scene, exists := entry.Data["scene"]
	if exists {
		ns := fmt.Sprint(scene)
		if client, ok := entry.Data["client"]; ok {
			ns = fmt.Sprintf("%s/%.8s", ns, fmt.Sprint(client))
		}
		entry.Message = fmt.Sprintf("[%-14s] %s", ns, entry.Message)
	}
	return f.Parent.Format(entry)
}
