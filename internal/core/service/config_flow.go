package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// ConfigFlow is the setup wizard: a single "user" step that picks the bus
// interface and its baud rate.
type ConfigFlow struct {
	uniqueIdConfigured func(uniqueId string) bool
	logger             *zap.Logger
}

func NewConfigFlow(uniqueIdConfigured func(uniqueId string) bool, logger *zap.Logger) *ConfigFlow {
	return &ConfigFlow{
		uniqueIdConfigured: uniqueIdConfigured,
		logger:             logger.With(zap.String("flow", domain.FLOW_HANDLER_CONFIG)),
	}
}

func (f *ConfigFlow) Handler() string {
	return domain.FLOW_HANDLER_CONFIG
}

func (f *ConfigFlow) Init(_ context.Context) (domain.FlowResult, error) {
	return f.showUserForm(nil), nil
}

func (f *ConfigFlow) Step(ctx context.Context, input map[string]any) (domain.FlowResult, error) {
	form := setupForm{
		Interface: domain.DEFAULT_INTERFACE,
		BaudRate:  domain.DEFAULT_BAUD_RATE,
	}
	if errs := decodeForm(input, &form); errs != nil {
		f.logger.Debug("config_flow@user invalid input", zap.Any("errors", errs))
		return f.showUserForm(errs), nil
	}

	entry, err := f.Submit(ctx, form.Interface, form.BaudRate)
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicateInterface) {
			return domain.FlowResult{}, err
		}
		f.logger.Info("config_flow@user abort", zap.String("interface", form.Interface), zap.Error(err))
		return domain.FlowResult{
			Handler: f.Handler(),
			Type:    domain.FLOW_RESULT_ABORT,
			Reason:  domain.ABORT_ALREADY_CONFIGURED,
		}, nil
	}

	return domain.FlowResult{
		Handler: f.Handler(),
		Type:    domain.FLOW_RESULT_CREATE_ENTRY,
		Title:   entry.Title,
		Entry:   &entry,
	}, nil
}

// Submit builds the entry for an interface, or fails with ErrDuplicateInterface
// when that interface already has one. The baud rate takes no part in uniqueness.
func (f *ConfigFlow) Submit(_ context.Context, iface string, baudRate int) (domain.ConfigurationEntry, error) {
	if iface == "" || baudRate <= 0 {
		return domain.ConfigurationEntry{}, fmt.Errorf("invalid setup input %q/%d", iface, baudRate)
	}
	entry := domain.NewConfigurationEntry(iface, baudRate)
	if f.uniqueIdConfigured != nil && f.uniqueIdConfigured(entry.UniqueId) {
		return domain.ConfigurationEntry{}, fmt.Errorf("%s: %w", entry.UniqueId, domain.ErrDuplicateInterface)
	}
	return entry, nil
}

func (f *ConfigFlow) showUserForm(errs map[string]string) domain.FlowResult {
	return domain.FlowResult{
		Handler: f.Handler(),
		Type:    domain.FLOW_RESULT_FORM,
		StepId:  domain.STEP_USER,
		DataSchema: []domain.FormField{
			{Name: FIELD_INTERFACE, Type: domain.FIELD_TYPE_STRING, Required: true, Default: domain.DEFAULT_INTERFACE},
			{Name: FIELD_BAUD_RATE, Type: domain.FIELD_TYPE_INTEGER, Required: true, Default: domain.DEFAULT_BAUD_RATE},
		},
		Errors: errs,
	}
}

var _ port.Flow = (*ConfigFlow)(nil)
