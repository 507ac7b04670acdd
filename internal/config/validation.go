package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/yoanbernabeu/sshfleet/internal/security"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateInventory validates an inventory. Hosts and groups are checked in
// name order so the errors are stable.
func ValidateInventory(inv *Inventory) ValidationErrors {
	var errors ValidationErrors

	if inv.Defaults.User != "" {
		if err := security.ValidateUnixUser(inv.Defaults.User); err != nil {
			errors = append(errors, ValidationError{Field: "defaults.user", Message: err.Error()})
		}
	}
	if inv.Defaults.Port != 0 && !validPort(inv.Defaults.Port) {
		errors = append(errors, ValidationError{
			Field:   "defaults.port",
			Message: "port must be between 1 and 65535",
		})
	}
	if inv.Defaults.BatchSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "defaults.batch_size",
			Message: "batch_size must be a positive number",
		})
	}
	if inv.Defaults.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "defaults.timeout",
			Message: "timeout must not be negative",
		})
	}

	for _, name := range inv.ListHosts() {
		host := inv.Hosts[name]
		errors = append(errors, ValidateHostConfig(name, &host)...)
	}

	groups := make([]string, 0, len(inv.Groups))
	for name := range inv.Groups {
		groups = append(groups, name)
	}
	slices.Sort(groups)
	for _, name := range groups {
		field := "groups." + name
		if name == AllHosts {
			errors = append(errors, ValidationError{Field: field, Message: "'all' is reserved"})
		}
		if _, clash := inv.Hosts[name]; clash {
			errors = append(errors, ValidationError{Field: field, Message: "group name is also a host name"})
		}
		for _, member := range inv.Groups[name] {
			if _, ok := inv.Hosts[member]; !ok {
				errors = append(errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("unknown host '%s'", member),
				})
			}
		}
	}

	return errors
}

// ValidateHostConfig validates a single host entry
func ValidateHostConfig(name string, host *HostConfig) ValidationErrors {
	var errors ValidationErrors
	field := "hosts." + name

	if name == AllHosts {
		errors = append(errors, ValidationError{Field: field, Message: "'all' is reserved"})
	} else if !nameRegex.MatchString(name) {
		errors = append(errors, ValidationError{
			Field:   field,
			Message: "host name must contain only letters, numbers, dots, underscores, and hyphens",
		})
	}

	if err := security.ValidateHost(host.Host); err != nil {
		errors = append(errors, ValidationError{Field: field + ".host", Message: err.Error()})
	}

	if host.User != "" {
		if err := security.ValidateUnixUser(host.User); err != nil {
			errors = append(errors, ValidationError{Field: field + ".user", Message: err.Error()})
		}
	}

	if host.Port != 0 && !validPort(host.Port) {
		errors = append(errors, ValidationError{
			Field:   field + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
