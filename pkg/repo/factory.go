package repo

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

type GeneratorType string

const (
	Builtin    GeneratorType = "builtin"
	Createrepo GeneratorType = "createrepo"
)

type GeneratorOptions struct {
	// Arches restricts accepted package architectures. Empty accepts all.
	Arches []string
	Source PackageSource
	Log    *zap.SugaredLogger
}

var factory = make(map[GeneratorType]func(GeneratorOptions) Generator)

func Register(gt GeneratorType, gen func(GeneratorOptions) Generator) {
	if _, ok := factory[gt]; ok {
		return
	}
	factory[gt] = gen
}

func NewGenerator(gt GeneratorType, opts GeneratorOptions) (Generator, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if gen, ok := factory[gt]; ok {
		return gen(opts), nil
	}
	return nil, fmt.Errorf("unsupported generator: %s", gt)
}

func GeneratorTypes() []string {
	var out []string
	for gt := range factory {
		out = append(out, string(gt))
	}
	sort.Strings(out)
	return out
}
