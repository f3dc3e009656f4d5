package generate

import (
	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// runtimeSettings emits the execution-environment configuration artifact.
// The interactive editor and admin API are disabled unconditionally; the
// runtime a bundle deploys to is headless. Production mode additionally
// forces HTTPS and conservative logging.
func runtimeSettings(ch *ir.Channel, opts Options) ir.RuntimeSettings {
	s := ir.RuntimeSettings{
		Version:         1,
		ChannelID:       ch.ChannelID,
		BuildID:         opts.BuildID,
		Mode:            opts.Mode,
		Target:          opts.Target,
		EditorEnabled:   false,
		AdminAPIEnabled: false,
		Security:        ch.SecurityIntent,
	}
	if opts.Mode == ir.ModeProduction {
		s.RequireHTTPS = true
		s.Logging = ir.LogSettings{Level: "warn", AuditEnabled: true, Console: false}
	} else {
		s.RequireHTTPS = false
		s.Logging = ir.LogSettings{Level: "debug", AuditEnabled: false, Console: true}
	}
	return s
}

// bundleManifest emits the bundle coordinates and relative artifact paths.
func bundleManifest(ch *ir.Channel, opts Options) ir.BundleManifest {
	return ir.BundleManifest{
		Version:   1,
		ChannelID: ch.ChannelID,
		BuildID:   opts.BuildID,
		Mode:      opts.Mode,
		Artifacts: ir.ArtifactPaths{
			FlowsJSONPath:      ir.FlowsFileName,
			SettingsPath:       ir.SettingsFileName,
			CredentialsMapPath: ir.CredentialsMapFileName,
		},
	}
}
