package config

import (
	"fmt"
	"time"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/matrix"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
)

// Kind discriminates packaging profiles.
type Kind string

const (
	KindArchive     Kind = "archive"
	KindJavaArchive Kind = "java-archive"
	KindJlink       Kind = "jlink"
	KindJpackage    Kind = "jpackage"
	KindNativeImage Kind = "native-image"
	KindDeb         Kind = "deb"
)

var Kinds = []Kind{KindArchive, KindJavaArchive, KindJlink, KindJpackage, KindNativeImage, KindDeb}

// PackagingFile is the decoded release-packager.yml.
type PackagingFile struct {
	Project  Project    `yaml:"project"`
	Profiles []*Profile `yaml:"profiles"`

	// BaseDir is the directory holding the file; relative paths resolve
	// against it.
	BaseDir string `yaml:"-"`
}

type Project struct {
	Name            string   `yaml:"name"`
	Version         string   `yaml:"version"`
	Description     string   `yaml:"description,omitempty"`
	LongDescription string   `yaml:"longDescription,omitempty"`
	Authors         []string `yaml:"authors,omitempty"`
	License         string   `yaml:"license,omitempty"`
	Vendor          string   `yaml:"vendor,omitempty"`
	Copyright       string   `yaml:"copyright,omitempty"`
	Homepage        string   `yaml:"homepage,omitempty"`
	Snapshot        bool     `yaml:"snapshot,omitempty"`
	JavaVersion     string   `yaml:"javaVersion,omitempty"`
}

// Profile is one packaging unit. Exactly the block matching Kind is used.
type Profile struct {
	Name              string            `yaml:"name"`
	Kind              Kind              `yaml:"kind"`
	Platform          platform.Tag      `yaml:"platform,omitempty"`
	Active            source.Activation `yaml:"active,omitempty"`
	Artifacts         []source.Artifact `yaml:"artifacts,omitempty"`
	Globs             []source.Glob     `yaml:"globs,omitempty"`
	FileSets          []source.FileSet  `yaml:"fileSets,omitempty"`
	Formats           []string          `yaml:"formats,omitempty"`
	TemplateDirectory string            `yaml:"templateDirectory,omitempty"`
	SkipTemplates     []string          `yaml:"skipTemplates,omitempty"`
	Matrix            *matrix.Matrix    `yaml:"matrix,omitempty"`
	ArchiveName       string            `yaml:"archiveName,omitempty"`
	AttachPlatform    bool              `yaml:"attachPlatform,omitempty"`
	Options           ArchiveOptions    `yaml:"options,omitempty"`
	Extra             map[string]string `yaml:"extraProperties,omitempty"`
	Swid              *Swid             `yaml:"swid,omitempty"`

	Java        *JavaArchive `yaml:"java,omitempty"`
	Jlink       *Jlink       `yaml:"jlink,omitempty"`
	Jpackage    *Jpackage    `yaml:"jpackage,omitempty"`
	NativeImage *NativeImage `yaml:"nativeImage,omitempty"`
	Deb         *Deb         `yaml:"deb,omitempty"`
}

// ArchiveOptions is the declared form of archive.Options.
type ArchiveOptions struct {
	Timestamp              string `yaml:"timestamp,omitempty"`
	LongFileMode           string `yaml:"longFileMode,omitempty"`
	BigNumberMode          string `yaml:"bigNumberMode,omitempty"`
	RootEntryName          string `yaml:"rootEntryName,omitempty"`
	CreateIntermediateDirs bool   `yaml:"createIntermediateDirs,omitempty"`
}

// Resolve converts the declaration. Timestamps are RFC 3339 or Unix
// seconds.
func (o ArchiveOptions) Resolve() (archive.Options, error) {
	opts := archive.Options{
		LongFileMode:           archive.Mode(o.LongFileMode),
		BigNumberMode:          archive.Mode(o.BigNumberMode),
		RootEntryName:          o.RootEntryName,
		CreateIntermediateDirs: o.CreateIntermediateDirs,
	}
	if o.Timestamp != "" {
		ts, err := parseTimestamp(o.Timestamp)
		if err != nil {
			return opts, err
		}
		opts.Timestamp = &ts
	}
	return opts, opts.Validate()
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err == nil && fmt.Sprint(secs) == s {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: use RFC 3339 or Unix seconds", s)
}

// Swid enables a software identity tag inside the produced archive.
type Swid struct {
	Enabled    bool   `yaml:"enabled"`
	TagName    string `yaml:"tagName,omitempty"`
	Path       string `yaml:"path,omitempty"`
	EntityName string `yaml:"entityName,omitempty"`
	RegID      string `yaml:"regId,omitempty"`
	Lang       string `yaml:"lang,omitempty"`
}

// Executable names the launcher of a Java distribution.
type Executable struct {
	Name             string `yaml:"name,omitempty"`
	UnixExtension    string `yaml:"unixExtension,omitempty"`
	WindowsExtension string `yaml:"windowsExtension,omitempty"`
}

// JavaSettings are the runtime settings shared by the Java kinds.
type JavaSettings struct {
	MainClass  string   `yaml:"mainClass,omitempty"`
	MainModule string   `yaml:"mainModule,omitempty"`
	JvmOptions []string `yaml:"jvmOptions,omitempty"`
}

type JavaArchive struct {
	MainJar    source.Artifact `yaml:"mainJar"`
	Jars       []source.Glob   `yaml:"jars,omitempty"`
	Java       JavaSettings    `yaml:"settings,omitempty"`
	Executable Executable      `yaml:"executable,omitempty"`
}

// PrebuiltArchive points at an already packaged Java archive whose
// library directory is reused.
type PrebuiltArchive struct {
	Path             string `yaml:"path"`
	MainJarName      string `yaml:"mainJarName,omitempty"`
	LibDirectoryName string `yaml:"libDirectoryName,omitempty"`
}

type Jdeps struct {
	Enabled           *bool  `yaml:"enabled,omitempty"`
	MultiRelease      string `yaml:"multiRelease,omitempty"`
	IgnoreMissingDeps bool   `yaml:"ignoreMissingDeps,omitempty"`
}

type Jlink struct {
	JDK                   source.Artifact   `yaml:"jdk,omitempty"`
	TargetJDKs            []source.Artifact `yaml:"targetJdks"`
	ModuleNames           []string          `yaml:"moduleNames,omitempty"`
	AdditionalModuleNames []string          `yaml:"additionalModuleNames,omitempty"`
	Args                  []string          `yaml:"args,omitempty"`
	MainJar               source.Artifact   `yaml:"mainJar"`
	Jars                  []source.Glob     `yaml:"jars,omitempty"`
	Java                  JavaSettings      `yaml:"settings,omitempty"`
	Executable            Executable        `yaml:"executable,omitempty"`
	ImageName             string            `yaml:"imageName,omitempty"`
	CopyJars              *bool             `yaml:"copyJars,omitempty"`
	JavaArchive           *PrebuiltArchive  `yaml:"javaArchive,omitempty"`
	Jdeps                 Jdeps             `yaml:"jdeps,omitempty"`
}

type ApplicationPackage struct {
	AppName          string   `yaml:"appName,omitempty"`
	AppVersion       string   `yaml:"appVersion,omitempty"`
	Vendor           string   `yaml:"vendor,omitempty"`
	Copyright        string   `yaml:"copyright,omitempty"`
	LicenseFile      string   `yaml:"licenseFile,omitempty"`
	FileAssociations []string `yaml:"fileAssociations,omitempty"`
}

type Launcher struct {
	Arguments   []string `yaml:"arguments,omitempty"`
	JavaOptions []string `yaml:"javaOptions,omitempty"`
	Launchers   []string `yaml:"launchers,omitempty"`
}

// JpackagePlatform holds the options every OS bag shares.
type JpackagePlatform struct {
	Types       []string `yaml:"types,omitempty"`
	Icon        string   `yaml:"icon,omitempty"`
	InstallDir  string   `yaml:"installDir,omitempty"`
	ResourceDir string   `yaml:"resourceDir,omitempty"`
}

type JpackageLinux struct {
	JpackagePlatform `yaml:",inline"`
	PackageName      string   `yaml:"packageName,omitempty"`
	Maintainer       string   `yaml:"maintainer,omitempty"`
	MenuGroup        string   `yaml:"menuGroup,omitempty"`
	License          string   `yaml:"license,omitempty"`
	AppRelease       string   `yaml:"appRelease,omitempty"`
	AppCategory      string   `yaml:"appCategory,omitempty"`
	Shortcut         bool     `yaml:"shortcut,omitempty"`
	PackageDeps      []string `yaml:"packageDeps,omitempty"`
}

type JpackageOsx struct {
	JpackagePlatform     `yaml:",inline"`
	PackageIdentifier    string `yaml:"packageIdentifier,omitempty"`
	PackageName          string `yaml:"packageName,omitempty"`
	PackageSigningPrefix string `yaml:"packageSigningPrefix,omitempty"`
	SigningKeychain      string `yaml:"signingKeychain,omitempty"`
	SigningKeyUsername   string `yaml:"signingKeyUsername,omitempty"`
	Sign                 bool   `yaml:"sign,omitempty"`
}

type JpackageWindows struct {
	JpackagePlatform `yaml:",inline"`
	Console          bool   `yaml:"console,omitempty"`
	DirChooser       bool   `yaml:"dirChooser,omitempty"`
	MenuGroup        string `yaml:"menuGroup,omitempty"`
	Menu             bool   `yaml:"menu,omitempty"`
	PerUserInstall   bool   `yaml:"perUserInstall,omitempty"`
	Shortcut         bool   `yaml:"shortcut,omitempty"`
	UpgradeUUID      string `yaml:"upgradeUuid,omitempty"`
}

type Jpackage struct {
	JDK                source.Artifact    `yaml:"jdk,omitempty"`
	RuntimeImages      []source.Artifact  `yaml:"runtimeImages,omitempty"`
	RuntimeImageRef    string             `yaml:"runtimeImageRef,omitempty"`
	MainJar            source.Artifact    `yaml:"mainJar"`
	Jars               []source.Glob      `yaml:"jars,omitempty"`
	Java               JavaSettings       `yaml:"settings,omitempty"`
	ApplicationPackage ApplicationPackage `yaml:"applicationPackage,omitempty"`
	Launcher           Launcher           `yaml:"launcher,omitempty"`
	Linux              *JpackageLinux     `yaml:"linux,omitempty"`
	Osx                *JpackageOsx       `yaml:"osx,omitempty"`
	Windows            *JpackageWindows   `yaml:"windows,omitempty"`
}

type Upx struct {
	Enabled bool     `yaml:"enabled"`
	Args    []string `yaml:"args,omitempty"`
}

type NativeImage struct {
	GraalVM    source.Artifact `yaml:"graal,omitempty"`
	MainJar    source.Artifact `yaml:"mainJar"`
	Jars       []source.Glob   `yaml:"jars,omitempty"`
	Java       JavaSettings    `yaml:"settings,omitempty"`
	ImageName  string          `yaml:"imageName,omitempty"`
	Executable string          `yaml:"executable,omitempty"`
	Args       []string        `yaml:"args,omitempty"`
	Components []string        `yaml:"components,omitempty"`
	Upx        Upx             `yaml:"upx,omitempty"`
}

type Deb struct {
	AssemblerRef     string   `yaml:"assemblerRef,omitempty"`
	InstallationPath string   `yaml:"installationPath,omitempty"`
	PackageName      string   `yaml:"packageName,omitempty"`
	PackageVersion   string   `yaml:"packageVersion,omitempty"`
	Revision         int      `yaml:"revision,omitempty"`
	Maintainer       string   `yaml:"maintainer,omitempty"`
	Section          string   `yaml:"section,omitempty"`
	Priority         string   `yaml:"priority,omitempty"`
	Essential        bool     `yaml:"essential,omitempty"`
	Homepage         string   `yaml:"homepage,omitempty"`
	BuiltUsing       string   `yaml:"builtUsing,omitempty"`
	Depends          []string `yaml:"depends,omitempty"`
	PreDepends       []string `yaml:"preDepends,omitempty"`
	Recommends       []string `yaml:"recommends,omitempty"`
	Suggests         []string `yaml:"suggests,omitempty"`
	Enhances         []string `yaml:"enhances,omitempty"`
	Breaks           []string `yaml:"breaks,omitempty"`
	Conflicts        []string `yaml:"conflicts,omitempty"`
	Provides         []string `yaml:"provides,omitempty"`
	Replaces         []string `yaml:"replaces,omitempty"`
}

// Ref names the profile whose outputs this profile consumes, if any.
func (p *Profile) Ref() string {
	switch {
	case p.Kind == KindDeb && p.Deb != nil:
		return p.Deb.AssemblerRef
	case p.Kind == KindJpackage && p.Jpackage != nil:
		return p.Jpackage.RuntimeImageRef
	}
	return ""
}

// Profile returns the named profile or nil.
func (f *PackagingFile) Profile(name string) *Profile {
	for _, p := range f.Profiles {
		if p.Name == name {
			return p
		}
	}
	return nil
}
