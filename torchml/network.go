package torchml

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
	torch "github.com/wangkuiyi/gotorch"
	"github.com/wangkuiyi/gotorch/nn"
	"github.com/wangkuiyi/gotorch/vision/models"

	"dogcat/ml"
)

// NumClasses is the width of the classifier head: cat and dog.
const NumClasses = 2

// ErrUnknownArch is returned for an architecture name with no constructor.
var ErrUnknownArch = errors.New("unknown architecture")

var architectures = map[string]func() *models.ResnetModule{
	"resnet18": models.Resnet18,
	"resnet34": resnet34,
	"resnet50": models.Resnet50,
}

// resnet34 is assembled from basic blocks; the model zoo only ships 18 and 50.
func resnet34() *models.ResnetModule {
	block := reflect.TypeOf((*models.BasicBlockModule)(nil)).Elem()
	return models.Resnet(block, []int64{3, 4, 6, 3}, 1000, false, 1, 64)
}

// Architectures lists the supported architecture names.
func Architectures() []string {
	names := make([]string, 0, len(architectures))
	for name := range architectures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newResnet(arch string) (*models.ResnetModule, error) {
	ctor, ok := architectures[arch]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownArch, "%q (have %v)", arch, Architectures())
	}
	return ctor(), nil
}

// resetHead replaces the final linear layer with a fresh NumClasses-output one.
func resetHead(r *models.ResnetModule) {
	in := r.FC.Weight.Shape()[1]
	r.FC = nn.Linear(in, NumClasses, true)
}

// Network is a ResNet with a two-class head living on one device.
type Network struct {
	arch   string
	net    *models.ResnetModule
	device torch.Device
}

func newNetwork(arch string, r *models.ResnetModule, device torch.Device) *Network {
	r.To(device)
	return &Network{arch: arch, net: r, device: device}
}

func (n *Network) Arch() string { return n.arch }

func (n *Network) Train(on bool) { n.net.Train(on) }

// Forward runs the images of b through the network.
func (n *Network) Forward(b ml.Batch) ml.Output {
	batch := b.(*Batch)
	images := batch.Images.To(n.device, batch.Images.Dtype())
	labels := batch.Labels.To(n.device, batch.Labels.Dtype())
	return &Output{Logits: n.net.Forward(images), Labels: labels}
}

// Parameters are the trainable tensors, for building an optimizer.
func (n *Network) Parameters() []torch.Tensor { return n.net.Parameters() }

// StateDict moves the network to the CPU and returns its state, then moves
// it back once restore is called.
func (n *Network) StateDict() (state map[string]torch.Tensor, restore func()) {
	n.net.To(torch.NewDevice("cpu"))
	return n.net.StateDict(), func() { n.net.To(n.device) }
}

// Output holds the logits of a forward pass with the labels they are scored against.
type Output struct {
	Logits torch.Tensor
	Labels torch.Tensor
}

// Correct counts the samples whose arg-max class equals the label.
func (o *Output) Correct() int {
	pred := o.Logits.Argmax(1)
	correct := pred.Eq(o.Labels.View(pred.Shape()...)).Sum(map[string]interface{}{"dim": 0, "keepDim": false}).Item().(int64)
	return int(correct)
}
