package metadata

type ResourceType int

/** @brief Resource types understood by the asset manager. */
const (
	/** @brief Unknown or ignored file. */
	ResourceTypeNone ResourceType = iota
	/** @brief Binary resource type. */
	ResourceTypeBinary
	/** @brief Precompiled SPIR-V shader stage. */
	ResourceTypeShader
	/** @brief TOML application configuration. */
	ResourceTypeConfig
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeConfig:
		return "config"
	default:
		return "none"
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
