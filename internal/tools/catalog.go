package tools

// RegisterCRM adds the store-backed read tools and the plan-proposing write tools.
func RegisterCRM(reg *Registry, r CRMReader) {
	reg.Register(NewSearchClientsTool(r))
	reg.Register(NewGetClientTool(r))
	reg.Register(NewListActivitiesTool(r))
	reg.Register(NewListSchedulesTool(r))

	reg.Register(NewCreateClientTool())
	reg.Register(NewLogActivityTool(r))
	reg.Register(NewChangeStageTool(r))
	reg.Register(NewCreateScheduleTool(r))
	reg.Register(NewUpdateClientTool(r))
}

// RegisterWeb adds the web research tools.
func RegisterWeb(reg *Registry) error {
	search, err := NewWebSearchTool()
	if err != nil {
		return err
	}
	reg.Register(search)
	reg.Register(NewCompanyPageTool())
	return nil
}
