package leonardo

type improveRequest struct {
	Prompt string `json:"prompt"`
}

type improveResponse struct {
	PromptGeneration struct {
		Prompt string `json:"prompt"`
	} `json:"promptGeneration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type initImageRequest struct {
	Extension string `json:"extension"`
}

type initImageResponse struct {
	UploadInitImage struct {
		// Fields is a JSON object serialized as a string; its entries become
		// the form fields of the direct upload.
		Fields string `json:"fields"`
		URL    string `json:"url"`
		ID     string `json:"id"`
	} `json:"uploadInitImage"`
}

type controlnet struct {
	InitImageID    string `json:"initImageId"`
	InitImageType  string `json:"initImageType"`
	PreprocessorID int    `json:"preprocessorId"`
	StrengthType   string `json:"strengthType"`
}

type generationRequest struct {
	Height        int          `json:"height"`
	Width         int          `json:"width"`
	ModelID       string       `json:"modelId"`
	Prompt        string       `json:"prompt"`
	PhotoReal     bool         `json:"photoReal"`
	GuidanceScale int          `json:"guidance_scale"`
	NumImages     int          `json:"num_images"`
	InitImageID   string       `json:"init_image_id,omitempty"`
	InitStrength  float64      `json:"init_strength,omitempty"`
	Controlnets   []controlnet `json:"controlnets,omitempty"`
	PresetStyle   string       `json:"presetStyle,omitempty"`
}

type generationResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type statusResponse struct {
	GenerationsByPK struct {
		Status          string `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

// GeneratedImage is the result of a completed generation job.
type GeneratedImage struct {
	URL string
}
