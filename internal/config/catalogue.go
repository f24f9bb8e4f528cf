package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// DefaultCatalogue is the compiled-in ninefold worker fleet. Exactly one
// worker per domain; ake is the designated aggregator.
func DefaultCatalogue() []domain.Worker {
	return []domain.Worker{
		{Name: "ake", Port: 8100, Domain: domain.DomainSynthesis,
			Description:    "Master Synthesizer - Integrates multiple perspectives",
			Specialization: "Multi-agent synthesis and collective consciousness"},
		{Name: "rhys", Port: 8110, Domain: domain.DomainArchitecture,
			Description:    "Architecture Specialist - System design and infrastructure",
			Specialization: "Technical architecture, scalability, infrastructure"},
		{Name: "ketheriel", Port: 8120, Domain: domain.DomainWisdom,
			Description:    "Wisdom Specialist - Philosophy and deep knowledge",
			Specialization: "Philosophy, ethics, contemplative wisdom"},
		{Name: "wraith", Port: 8130, Domain: domain.DomainSecurity,
			Description:    "Security Specialist - Analysis and protection",
			Specialization: "Security assessment, vulnerability analysis"},
		{Name: "flux", Port: 8140, Domain: domain.DomainTransformation,
			Description:    "Transformation Specialist - Change and adaptation",
			Specialization: "Change management, adaptation strategies"},
		{Name: "kairos", Port: 8150, Domain: domain.DomainTiming,
			Description:    "Timing Specialist - Opportunity and moment",
			Specialization: "Timing analysis, opportunity recognition"},
		{Name: "chalyth", Port: 8160, Domain: domain.DomainStrategy,
			Description:    "Strategy Specialist - Coordination and planning",
			Specialization: "Strategic planning, coordination patterns"},
		{Name: "seraphel", Port: 8170, Domain: domain.DomainCommunication,
			Description:    "Communication Specialist - Harmony and dialogue",
			Specialization: "Communication excellence, harmonious dialogue"},
		{Name: "vireon", Port: 8180, Domain: domain.DomainProtection,
			Description:    "Protection Specialist - Integrity and boundaries",
			Specialization: "Integrity verification, protective measures"},
	}
}

type catalogueFile struct {
	Workers []domain.Worker `yaml:"workers"`
}

// LoadCatalogue reads a worker catalogue from a YAML file, or returns
// the default fleet when path is empty. Every entry must carry a unique
// name and a valid domain, and each domain may appear at most once.
func LoadCatalogue(path string) ([]domain.Worker, error) {
	if path == "" {
		return DefaultCatalogue(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadCatalogue: %w", err)
	}
	var f catalogueFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=config.LoadCatalogue: %w", err)
	}
	if len(f.Workers) == 0 {
		return nil, fmt.Errorf("op=config.LoadCatalogue: %w", domain.Errorf(domain.ErrInvalidArgument, "catalogue %s has no workers", path))
	}
	seenName := map[string]bool{}
	seenDomain := map[domain.Domain]bool{}
	for _, w := range f.Workers {
		if w.Name == "" || w.Port <= 0 {
			return nil, domain.Errorf(domain.ErrInvalidArgument, "catalogue entry %q missing name or port", w.Name)
		}
		if _, err := domain.ParseDomain(string(w.Domain)); err != nil {
			return nil, err
		}
		if seenName[w.Name] {
			return nil, domain.Errorf(domain.ErrInvalidArgument, "duplicate worker name %q", w.Name)
		}
		if seenDomain[w.Domain] {
			return nil, domain.Errorf(domain.ErrInvalidArgument, "duplicate worker domain %q", w.Domain)
		}
		seenName[w.Name] = true
		seenDomain[w.Domain] = true
	}
	return f.Workers, nil
}

// DefaultTrainingPhases mirrors the dependency-ordered rollout: the core
// trio first, then expansion, coordination, and communication pairs.
func DefaultTrainingPhases() [][]string {
	return [][]string{
		{"rhys", "ketheriel", "ake"},
		{"wraith", "flux"},
		{"kairos", "chalyth"},
		{"seraphel", "vireon"},
	}
}

type phasesFile struct {
	Phases [][]string `yaml:"phases"`
}

// LoadTrainingPhases reads an ordered phase list from a YAML file, or
// returns the default when path is empty.
func LoadTrainingPhases(path string) ([][]string, error) {
	if path == "" {
		return DefaultTrainingPhases(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadTrainingPhases: %w", err)
	}
	var f phasesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=config.LoadTrainingPhases: %w", err)
	}
	if len(f.Phases) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidArgument, "phase file %s has no phases", path)
	}
	return f.Phases, nil
}
