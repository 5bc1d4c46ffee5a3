// Package catalog picks the installed model that best matches a requested name.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/compgen/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// FamilyPriority is the order in which model families are matched when the
// requested model is not installed. General-purpose families come first.
var FamilyPriority = []string{"llama3", "llama", "codellama", "mistral", "phi"}

// genericFamily is the last-resort substring match.
const genericFamily = "llama"

// NoModelsAvailableError is returned by Resolve when the catalog is empty.
type NoModelsAvailableError struct {
	Requested string
}

func (e *NoModelsAvailableError) Error() string {
	return fmt.Sprintf("no models available on model server (requested %q)", e.Requested)
}

// Resolver lists a server's models and resolves requested names against them.
type Resolver struct {
	lister llm.ModelLister
	logger zerolog.Logger
}

// NewResolver creates a Resolver. A nil lister yields an always-empty catalog.
func NewResolver(lister llm.ModelLister, logger zerolog.Logger) *Resolver {
	return &Resolver{
		lister: lister,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// List returns the installed models. Errors are logged and produce an empty
// result; List never fails the caller.
func (r *Resolver) List(ctx context.Context) []llm.ModelDescriptor {
	if r.lister == nil {
		return nil
	}
	models, err := r.lister.ListModels(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Cannot list available models")
		return nil
	}
	r.logger.Debug().
		Strs("models", lo.Map(models, func(m llm.ModelDescriptor, _ int) string { return m.Name })).
		Msg("Available models")
	return models
}

// Select resolves requested against the live catalog. When the catalog is
// empty or cannot be queried, requested is returned unchanged.
func (r *Resolver) Select(ctx context.Context, requested string) string {
	models := r.List(ctx)
	resolved, err := Resolve(requested, models)
	if err != nil {
		var noModels *NoModelsAvailableError
		if errors.As(err, &noModels) {
			r.logger.Warn().Str("requested", requested).Msg("No models found on model server, proceeding with requested model")
		}
		return requested
	}
	if resolved != requested && resolved != llm.NormalizeModelName(requested) {
		r.logger.Info().Str("requested", requested).Str("model", resolved).Msg("Using alternative model")
	}
	return resolved
}

// Resolve picks the best catalog entry for requested:
//
//  1. an exact match, with or without the implicit ":latest" tag
//  2. the first entry sharing the requested family, walking FamilyPriority
//  3. the first entry containing "llama"
//  4. the first entry
//
// It fails only when models is empty.
func Resolve(requested string, models []llm.ModelDescriptor) (string, error) {
	if len(models) == 0 {
		return "", &NoModelsAvailableError{Requested: requested}
	}

	normalized := llm.NormalizeModelName(requested)
	if m, ok := lo.Find(models, func(m llm.ModelDescriptor) bool {
		return m.Name == requested || m.Name == normalized
	}); ok {
		return m.Name, nil
	}

	if match, ok := familyMatch(requested, models); ok {
		return match, nil
	}

	if m, ok := lo.Find(models, func(m llm.ModelDescriptor) bool {
		return strings.Contains(strings.ToLower(m.Name), genericFamily)
	}); ok {
		return m.Name, nil
	}

	return models[0].Name, nil
}

func familyMatch(requested string, models []llm.ModelDescriptor) (string, bool) {
	base := llm.ModelFamily(requested)
	for _, prefix := range FamilyPriority {
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		for _, m := range models {
			family := m.Family
			if family == "" {
				family = llm.ModelFamily(m.Name)
			}
			if strings.HasPrefix(family, prefix) {
				return m.Name, true
			}
		}
	}
	return "", false
}
