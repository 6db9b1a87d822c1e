package modules

// TemplateModule writes rendered content to the target. The orchestrator
// renders the src file (or inline content) before dispatch, so by the time
// this runs the content argument is final text.
type TemplateModule struct{}

type templateArgs struct {
	Content string `yaml:"content" validate:"required"`
	Dest    string `yaml:"dest" validate:"required"`
	Mode    string `yaml:"mode"`
	Owner   string `yaml:"owner"`
	Group   string `yaml:"group"`
	Backup  bool   `yaml:"backup"`
}

func (m *TemplateModule) Name() string { return "template" }

func (m *TemplateModule) Execute(ec *ExecContext, args map[string]any) (*Result, error) {
	var a templateArgs
	if err := DecodeArgs(args, &a); err != nil {
		return failf("template: %v", err), nil
	}

	content := []byte(a.Content)
	changed, err := contentDiffers(ec, a.Dest, content)
	if err != nil {
		return nil, err
	}

	if changed {
		if a.Backup {
			if err := backupRemote(ec, a.Dest); err != nil {
				return nil, err
			}
		}
		if err := ec.WriteFile(a.Dest, content); err != nil {
			return failf("template: failed to write %s: %v", a.Dest, err), nil
		}
	}

	mode := a.Mode
	if mode == "" {
		mode = "0644"
	}
	if res, err := applyFileAttrs(ec, a.Dest, mode, a.Owner, a.Group); err != nil || res != nil {
		return res, err
	}

	if changed {
		return okf(true, "%s templated", a.Dest), nil
	}
	return okf(false, "%s unchanged", a.Dest), nil
}
