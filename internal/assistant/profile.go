package assistant

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultName  = "TodoAssistant"
	defaultModel = "gpt-3.5-turbo-0125"

	defaultInstructions = "You are a helpful assistant that manages todos and calendar events. " +
		"You can add, remove, and list todo items, as well as add todo items to a calendar with specific dates and times. " +
		"You can integrate with Google Calendar to add events to the user's real calendar. " +
		"If the user has already authenticated with Google Calendar, you can directly add events to their Google Calendar without asking them to authenticate again. " +
		"Dates are DD-MM-YYYY and times are HH:MM in 24-hour format. " +
		"Always be concise and respond quickly."
)

// Profile is the remote assistant's identity and system instructions.
type Profile struct {
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Description  string `yaml:"description"`
	Instructions string `yaml:"instructions"`
}

func DefaultProfile() Profile {
	return Profile{Name: defaultName, Model: defaultModel, Instructions: defaultInstructions}
}

// LoadProfile reads a YAML profile. A missing file yields DefaultProfile;
// empty fields in the file fall back to the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("ℹ️ Assistant profile %s not found, using built-in defaults", path)
		return p, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read assistant profile: %w", err)
	}

	var fromFile Profile
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return Profile{}, fmt.Errorf("parse assistant profile %s: %w", path, err)
	}
	return p.Override(fromFile.Name, fromFile.Model).withText(fromFile.Description, fromFile.Instructions), nil
}

// Override replaces name and model with the non-empty arguments.
func (p Profile) Override(name, model string) Profile {
	if name != "" {
		p.Name = name
	}
	if model != "" {
		p.Model = model
	}
	return p
}

func (p Profile) withText(description, instructions string) Profile {
	if description != "" {
		p.Description = description
	}
	if instructions != "" {
		p.Instructions = instructions
	}
	return p
}
