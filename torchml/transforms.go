package torchml

import (
	"github.com/wangkuiyi/gotorch/vision/transforms"
)

var (
	mean = []float32{0.4914, 0.4822, 0.4465}
	std  = []float32{0.2023, 0.1994, 0.2010}
)

// TrainTransform augments a training image with a random crop and flip.
func TrainTransform() *transforms.ComposeTransformer {
	return transforms.Compose(
		transforms.RandomResizedCrop(224),
		transforms.RandomHorizontalFlip(0.5),
		transforms.ToTensor(),
		transforms.Normalize(mean, std))
}

// ValTransform center-crops a validation image, so repeated passes see identical inputs.
func ValTransform() *transforms.ComposeTransformer {
	return transforms.Compose(
		transforms.Resize(256),
		transforms.CenterCrop(224),
		transforms.ToTensor(),
		transforms.Normalize(mean, std))
}
