package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/zjrosen/propane/internal/domain/registry"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report manifest field names rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ToContributions converts a manifest into domain descriptors in scan order:
// contracts, then bindings (each queuing its own fragment), then standalone
// config. Invalid records are skipped and reported as
// *registry.MalformedDescriptorError; valid ones are still returned.
func ToContributions(m Manifest) (registry.Contributions, []error) {
	var (
		out  registry.Contributions
		errs []error
	)

	if err := validatorInstance().Var(m.Origin, "required,excludes=::"); err != nil {
		errs = append(errs, &registry.MalformedDescriptorError{
			Origin:     m.Describe(),
			Descriptor: "manifest",
			Reason:     "origin is required and cannot contain \"::\"",
		})
		return out, errs
	}

	for i, rec := range m.Contracts {
		if err := validatorInstance().Struct(rec); err != nil {
			errs = append(errs, malformed(m.Origin, fmt.Sprintf("contracts[%d] %s", i, rec.ID), err))
			continue
		}
		card, _ := registry.ParseCardinality(rec.Cardinality)
		ct, err := registry.NewContract(rec.ID, m.Origin, card)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.AddContract(ct.
			WithCapability(rec.Capability).
			WithInitOrder(rec.InitOrder).
			WithDescription(rec.Description))
	}

	for i, rec := range m.Bindings {
		if err := validatorInstance().Struct(rec); err != nil {
			errs = append(errs, malformed(m.Origin, fmt.Sprintf("bindings[%d] %s/%s", i, rec.Contract, rec.Implementation), err))
			continue
		}
		builder := registry.NewBindingBuilder(rec.Contract).
			Implementation(rec.Implementation).
			Origin(m.Origin).
			Priority(rec.Priority)
		if len(rec.Config) > 0 {
			strategy, _ := registry.ParseStrategy(rec.Strategy)
			frag, err := registry.NewFragment(rec.Contract, m.Origin, strategy, rec.Config)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			builder.Fragment(frag)
		}
		b, err := builder.Build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.AddBinding(b)
	}

	for i, rec := range m.Config {
		if err := validatorInstance().Struct(rec); err != nil {
			errs = append(errs, malformed(m.Origin, fmt.Sprintf("config[%d] %s", i, rec.Contract), err))
			continue
		}
		strategy, _ := registry.ParseStrategy(rec.Strategy)
		frag, err := registry.NewFragment(rec.Contract, m.Origin, strategy, rec.Values)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.AddFragment(frag)
	}

	return out, errs
}

func malformed(origin, descriptor string, err error) error {
	return &registry.MalformedDescriptorError{
		Origin:     origin,
		Descriptor: descriptor,
		Reason:     describeValidation(err),
		Err:        err,
	}
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
