package domain

type FlowResultType string

const (
	FLOW_RESULT_FORM         FlowResultType = "form"
	FLOW_RESULT_CREATE_ENTRY FlowResultType = "create_entry"
	FLOW_RESULT_ABORT        FlowResultType = "abort"

	FLOW_HANDLER_CONFIG  = DOMAIN
	FLOW_HANDLER_OPTIONS = "options"

	STEP_USER              = "user"
	STEP_INIT              = "init"
	STEP_ADD_BINARY_SENSOR = "add_binary_sensor"

	ABORT_ALREADY_CONFIGURED = "already_configured"

	FORM_ERROR_REQUIRED             = "required"
	FORM_ERROR_INVALID_VALUE        = "invalid_value"
	FORM_ERROR_INVALID_ADDRESS      = "invalid_address"
	FORM_ERROR_INVALID_DEVICE_CLASS = "invalid_device_class"
	FORM_ERROR_BASE                 = "base"

	FIELD_TYPE_STRING  = "string"
	FIELD_TYPE_INTEGER = "integer"
	FIELD_TYPE_BOOLEAN = "boolean"
	FIELD_TYPE_SELECT  = "select"
)

type FormField struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// FlowResult is what a flow step hands back to the host: a form to show, an
// entry to create (or options to store), or an abort.
type FlowResult struct {
	FlowId      string              `json:"flow_id"`
	Handler     string              `json:"handler"`
	Type        FlowResultType      `json:"type"`
	StepId      string              `json:"step_id,omitempty"`
	DataSchema  []FormField         `json:"data_schema,omitempty"`
	Errors      map[string]string   `json:"errors,omitempty"`
	Placeholder map[string]string   `json:"description_placeholders,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Title       string              `json:"title,omitempty"`
	Entry       *ConfigurationEntry `json:"result,omitempty"`
	Options     *EntryOptions       `json:"options,omitempty"`
}

func (r FlowResult) IsDone() bool {
	return r.Type == FLOW_RESULT_CREATE_ENTRY || r.Type == FLOW_RESULT_ABORT
}
