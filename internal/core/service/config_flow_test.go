package service

import (
	"context"
	"testing"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type uniqueIds map[string]bool

func (u uniqueIds) configured(uniqueId string) bool {
	return u[uniqueId]
}

func TestConfigFlowShowsUserForm(t *testing.T) {

	require := require.New(t)

	flow := NewConfigFlow(uniqueIds{}.configured, zap.NewNop())
	res, err := flow.Init(context.Background())
	require.NoError(err)
	require.Equal(domain.FLOW_RESULT_FORM, res.Type)
	require.Equal(domain.STEP_USER, res.StepId)
	require.Len(res.DataSchema, 2)
	require.Equal(domain.DEFAULT_INTERFACE, res.DataSchema[0].Default)
	require.Equal(domain.DEFAULT_BAUD_RATE, res.DataSchema[1].Default)
}

func TestConfigFlowCreatesEntry(t *testing.T) {

	require := require.New(t)

	flow := NewConfigFlow(uniqueIds{}.configured, zap.NewNop())
	res, err := flow.Step(context.Background(), map[string]any{
		FIELD_INTERFACE: "CAN1",
		FIELD_BAUD_RATE: float64(250000),
	})
	require.NoError(err)
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)
	require.Equal("SIB on CAN1 (250000bps)", res.Title)
	require.NotNil(res.Entry)
	require.Equal("CAN1", res.Entry.Interface)
	require.Equal(250000, res.Entry.BaudRate)
	require.Equal("sib_CAN1", res.Entry.UniqueId)
	require.Empty(res.Entry.Sensors)
}

func TestConfigFlowAppliesDefaults(t *testing.T) {

	require := require.New(t)

	flow := NewConfigFlow(uniqueIds{}.configured, zap.NewNop())
	res, err := flow.Step(context.Background(), map[string]any{})
	require.NoError(err)
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)
	require.Equal(domain.DEFAULT_INTERFACE, res.Entry.Interface)
	require.Equal(domain.DEFAULT_BAUD_RATE, res.Entry.BaudRate)
}

func TestConfigFlowRejectsDuplicateInterface(t *testing.T) {

	assert := assert.New(t)

	configured := uniqueIds{}
	flow := NewConfigFlow(configured.configured, zap.NewNop())

	entry, err := flow.Submit(context.Background(), "CAN0", 500000)
	assert.NoError(err)
	configured[entry.UniqueId] = true

	for _, baud := range []int{500000, 125000, 1} {
		_, err = flow.Submit(context.Background(), "CAN0", baud)
		assert.ErrorIs(err, domain.ErrDuplicateInterface, "baud %d", baud)
	}

	_, err = flow.Submit(context.Background(), "CAN1", 500000)
	assert.NoError(err, "another interface is accepted")

	res, err := flow.Step(context.Background(), map[string]any{FIELD_INTERFACE: "CAN0", FIELD_BAUD_RATE: 125000})
	assert.NoError(err)
	assert.Equal(domain.FLOW_RESULT_ABORT, res.Type)
	assert.Equal(domain.ABORT_ALREADY_CONFIGURED, res.Reason)
}

func TestConfigFlowInvalidInput(t *testing.T) {

	assert := assert.New(t)

	flow := NewConfigFlow(uniqueIds{}.configured, zap.NewNop())

	res, err := flow.Step(context.Background(), map[string]any{FIELD_INTERFACE: ""})
	assert.NoError(err)
	assert.Equal(domain.FLOW_RESULT_FORM, res.Type)
	assert.Equal(domain.FORM_ERROR_REQUIRED, res.Errors[FIELD_INTERFACE])

	res, err = flow.Step(context.Background(), map[string]any{FIELD_BAUD_RATE: -9600})
	assert.NoError(err)
	assert.Equal(domain.FLOW_RESULT_FORM, res.Type)
	assert.Equal(domain.FORM_ERROR_INVALID_VALUE, res.Errors[FIELD_BAUD_RATE])

	res, err = flow.Step(context.Background(), map[string]any{FIELD_BAUD_RATE: "fast"})
	assert.NoError(err)
	assert.Equal(domain.FLOW_RESULT_FORM, res.Type)
	assert.Equal(domain.FORM_ERROR_INVALID_VALUE, res.Errors[domain.FORM_ERROR_BASE])

	// JSON numbers arrive as float64
	res, err = flow.Step(context.Background(), map[string]any{FIELD_INTERFACE: "CAN0", FIELD_BAUD_RATE: 9600.7})
	assert.NoError(err)
	assert.Equal(domain.FLOW_RESULT_FORM, res.Type)
	assert.Equal(domain.FORM_ERROR_INVALID_VALUE, res.Errors[domain.FORM_ERROR_BASE])

	res, err = flow.Step(context.Background(), map[string]any{FIELD_INTERFACE: "CAN0", FIELD_BAUD_RATE: float64(9600)})
	assert.NoError(err)
	assert.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)
	assert.Equal(9600, res.Entry.BaudRate)
}
