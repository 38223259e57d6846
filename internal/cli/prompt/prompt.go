// Package prompt wraps promptui for the interactive parts of the CLI.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user presses Ctrl+C.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err came from an interrupted prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Confirm asks a yes/no question. Enter picks defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}

	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", label, hint)}
	result, err := p.Run()
	if err != nil {
		return false, wrapError(err)
	}
	return parseYesNo(result, defaultYes), nil
}

func parseYesNo(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def
	case "y", "yes":
		return true
	}
	return false
}

// Input prompts for free text with a default.
func Input(label, defaultValue string) (string, error) {
	p := promptui.Prompt{Label: label, Default: defaultValue}
	result, err := p.Run()
	return result, wrapError(err)
}

// InputValidated prompts until validate accepts the answer.
func InputValidated(label, defaultValue string, validate func(string) error) (string, error) {
	p := promptui.Prompt{Label: label, Default: defaultValue, Validate: validate}
	result, err := p.Run()
	return result, wrapError(err)
}

// InputPort prompts for a TCP port.
func InputPort(label string, defaultValue int) (int, error) {
	result, err := InputValidated(label, strconv.Itoa(defaultValue), ValidatePort)
	if err != nil {
		return 0, err
	}
	port, _ := strconv.Atoi(result)
	return port, nil
}

// ValidatePort accepts 1-65535.
func ValidatePort(input string) error {
	port, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return fmt.Errorf("must be a valid integer")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be a valid port (1-65535)")
	}
	return nil
}

// Password prompts with masked input.
func Password(label string) (string, error) {
	p := promptui.Prompt{Label: label, Mask: '*'}
	result, err := p.Run()
	return result, wrapError(err)
}

// Option is one entry of a Select list.
type Option struct {
	Label       string
	Value       string
	Description string
}

// Select shows options and returns the chosen Value.
func Select(label string, options []Option) (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label | white }}",
		Selected: "* {{ .Label | green }}",
		Details:  `{{ if .Description }}{{ "Description:" | faint }}	{{ .Description }}{{ end }}`,
	}

	p := promptui.Select{
		Label:     label,
		Items:     options,
		Templates: templates,
		Size:      10,
	}
	i, _, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}
