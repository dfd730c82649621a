package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type OptionsFlowState string

const (
	OPTIONS_STATE_INIT       OptionsFlowState = "INIT"
	OPTIONS_STATE_ADD_SENSOR OptionsFlowState = "ADD_SENSOR"
	OPTIONS_STATE_EXIT       OptionsFlowState = "EXIT"
)

// OptionsFlow is the options wizard of one entry. It works on a private copy
// of the entry's sensor list, appends one sensor per ADD_SENSOR round trip and
// hands the whole list back on EXIT. Nothing is visible outside the flow
// before EXIT.
type OptionsFlow struct {
	entry   domain.ConfigurationEntry
	sensors []domain.SensorDescriptor
	state   OptionsFlowState
	step    func(ctx context.Context, input map[string]any) (domain.FlowResult, error)
	logger  *zap.Logger
}

func NewOptionsFlow(entry domain.ConfigurationEntry, logger *zap.Logger) *OptionsFlow {
	flow := &OptionsFlow{
		entry:   entry.Clone(),
		sensors: domain.CloneSensors(entry.Sensors),
		logger: logger.With(zap.String("flow", domain.FLOW_HANDLER_OPTIONS),
			zap.String("entry_id", entry.EntryId)),
	}
	flow.become(OPTIONS_STATE_INIT)
	return flow
}

func (f *OptionsFlow) Handler() string {
	return domain.FLOW_HANDLER_OPTIONS
}

func (f *OptionsFlow) EntryId() string {
	return f.entry.EntryId
}

func (f *OptionsFlow) State() OptionsFlowState {
	return f.state
}

// Sensors returns a copy of the working list.
func (f *OptionsFlow) Sensors() []domain.SensorDescriptor {
	return domain.CloneSensors(f.sensors)
}

func (f *OptionsFlow) Init(_ context.Context) (domain.FlowResult, error) {
	f.become(OPTIONS_STATE_INIT)
	return f.showInitForm(), nil
}

func (f *OptionsFlow) Step(ctx context.Context, input map[string]any) (domain.FlowResult, error) {
	if f.step == nil {
		return domain.FlowResult{}, fmt.Errorf("options flow in state %s: %w", f.state, domain.ErrUnknownStep)
	}
	return f.step(ctx, input)
}

func (f *OptionsFlow) become(state OptionsFlowState) {
	f.state = state
	switch state {
	case OPTIONS_STATE_INIT:
		f.step = f.initStep
	case OPTIONS_STATE_ADD_SENSOR:
		f.step = f.addSensorStep
	case OPTIONS_STATE_EXIT:
		f.step = f.exitStep
	default:
		f.step = nil
	}
}

func (f *OptionsFlow) initStep(ctx context.Context, input map[string]any) (domain.FlowResult, error) {
	var form initForm
	if errs := decodeForm(input, &form); errs != nil {
		f.logger.Debug("options_flow@init invalid input", zap.Any("errors", errs))
		result := f.showInitForm()
		result.Errors = errs
		return result, nil
	}
	if form.AddBinarySensor {
		f.become(OPTIONS_STATE_ADD_SENSOR)
		return f.showAddSensorForm(nil), nil
	}
	f.become(OPTIONS_STATE_EXIT)
	return f.step(ctx, nil)
}

func (f *OptionsFlow) addSensorStep(_ context.Context, input map[string]any) (domain.FlowResult, error) {
	var form addBinarySensorForm
	if errs := decodeForm(input, &form); errs != nil {
		f.logger.Debug("options_flow@add_binary_sensor invalid input", zap.Any("errors", errs))
		return f.showAddSensorForm(errs), nil
	}

	// no de-duplication by address: a repeated address yields a second entity with the same unique id
	f.sensors = append(f.sensors, domain.SensorDescriptor{
		Name:        form.Name,
		Address:     form.Address,
		DeviceClass: form.DeviceClass,
	})
	f.logger.Debug("options_flow@add_binary_sensor sensor added", zap.Any("sensors", f.sensors))

	f.become(OPTIONS_STATE_INIT)
	return f.showInitForm(), nil
}

func (f *OptionsFlow) exitStep(_ context.Context, _ map[string]any) (domain.FlowResult, error) {
	f.logger.Debug("options_flow@exit", zap.Int("sensors", len(f.sensors)))
	// terminal
	f.step = nil
	options := domain.EntryOptions{Sensors: domain.CloneSensors(f.sensors)}
	return domain.FlowResult{
		Handler: f.Handler(),
		Type:    domain.FLOW_RESULT_CREATE_ENTRY,
		Options: &options,
	}, nil
}

func (f *OptionsFlow) showInitForm() domain.FlowResult {
	return domain.FlowResult{
		Handler: f.Handler(),
		Type:    domain.FLOW_RESULT_FORM,
		StepId:  domain.STEP_INIT,
		DataSchema: []domain.FormField{
			{Name: FIELD_ADD_BINARY_SENSOR, Type: domain.FIELD_TYPE_BOOLEAN, Default: false},
		},
		Placeholder: map[string]string{
			"sensor_count": strconv.Itoa(len(f.sensors)),
			"sensors":      sensorSummary(f.sensors),
		},
	}
}

func (f *OptionsFlow) showAddSensorForm(errs map[string]string) domain.FlowResult {
	return domain.FlowResult{
		Handler: f.Handler(),
		Type:    domain.FLOW_RESULT_FORM,
		StepId:  domain.STEP_ADD_BINARY_SENSOR,
		DataSchema: []domain.FormField{
			{Name: FIELD_NAME, Type: domain.FIELD_TYPE_STRING, Required: true},
			{Name: FIELD_ADDRESS, Type: domain.FIELD_TYPE_STRING, Required: true},
			{Name: FIELD_DEVICE_CLASS, Type: domain.FIELD_TYPE_SELECT, Options: domain.BinarySensorDeviceClasses()},
		},
		Errors: errs,
	}
}

func sensorSummary(sensors []domain.SensorDescriptor) string {
	parts := make([]string, 0, len(sensors))
	for _, s := range sensors {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Name, s.Address))
	}
	return strings.Join(parts, ", ")
}

var _ port.Flow = (*OptionsFlow)(nil)
