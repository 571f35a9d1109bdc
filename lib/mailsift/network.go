package mailsift

import (
	"math"
	"math/rand"
)

// training constants for the fallback fit. Full-batch gradient descent with a
// fixed rate and l2 penalty is enough for the tiny seed corpus and keeps the
// result reproducible.
const (
	trainEpochs = 500
	trainRate   = 0.25
	trainL2     = 1e-4
)

// netLayer is one fully connected layer, weights are row-major [out][in].
type netLayer struct {
	W [][]float64
	B []float64
}

// network is a feed-forward classifier with ReLU hidden layers and a
// two-class softmax output.
type network struct {
	Layers []netLayer
}

// newNetwork builds a network with the given input width and hidden layer
// sizes, ending in a two-unit output layer. Weights are initialized uniformly
// scaled by fan-in from the provided source so fitting is deterministic.
func newNetwork(inputDim int, hidden []int, rnd *rand.Rand) *network {
	sizes := append([]int{inputDim}, hidden...)
	sizes = append(sizes, 2)

	n := &network{}
	for l := 1; l < len(sizes); l++ {
		in, out := sizes[l-1], sizes[l]
		limit := math.Sqrt(6.0 / float64(in+1))
		layer := netLayer{W: make([][]float64, out), B: make([]float64, out)}
		for j := 0; j < out; j++ {
			layer.W[j] = make([]float64, in)
			for i := 0; i < in; i++ {
				layer.W[j][i] = (rnd.Float64()*2 - 1) * limit
			}
		}
		n.Layers = append(n.Layers, layer)
	}
	return n
}

// forward runs the input through the network and returns class probabilities
// and per-layer activations (input excluded). The input is sparse, only the
// first layer consumes it.
func (n *network) forward(input map[int]float64) (probs []float64, acts [][]float64) {
	first := n.Layers[0]
	h := make([]float64, len(first.B))
	copy(h, first.B)
	for i, x := range input {
		for j := range h {
			h[j] += first.W[j][i] * x
		}
	}
	relu(h)
	acts = append(acts, h)

	for l := 1; l < len(n.Layers); l++ {
		layer := n.Layers[l]
		out := make([]float64, len(layer.B))
		for j := range out {
			sum := layer.B[j]
			for i, x := range h {
				sum += layer.W[j][i] * x
			}
			out[j] = sum
		}
		if l < len(n.Layers)-1 {
			relu(out)
		}
		acts = append(acts, out)
		h = out
	}

	probs = softmax(h)
	return probs, acts
}

// train fits the network with full-batch gradient descent minimizing
// cross-entropy, labels are class indices {0,1}.
func (n *network) train(inputs []map[int]float64, labels []int, epochs int, rate, l2 float64) {
	nSamples := float64(len(inputs))
	if nSamples == 0 {
		return
	}

	for epoch := 0; epoch < epochs; epoch++ {
		gradW, gradB := n.zeroGrads()

		for s, input := range inputs {
			probs, acts := n.forward(input)

			// output delta: softmax with cross-entropy
			last := len(n.Layers) - 1
			delta := make([]float64, len(probs))
			copy(delta, probs)
			delta[labels[s]]--

			for l := last; l >= 0; l-- {
				var prev []float64
				if l > 0 {
					prev = acts[l-1]
				}
				for j := range delta {
					gradB[l][j] += delta[j]
					if l > 0 {
						for i, x := range prev {
							gradW[l][j][i] += delta[j] * x
						}
					} else {
						for i, x := range input {
							gradW[l][j][i] += delta[j] * x
						}
					}
				}
				if l == 0 {
					break
				}
				// propagate delta through the layer and the ReLU of the layer below
				next := make([]float64, len(prev))
				for i := range prev {
					if prev[i] <= 0 { // ReLU gradient is zero for inactive units
						continue
					}
					var sum float64
					for j := range delta {
						sum += n.Layers[l].W[j][i] * delta[j]
					}
					next[i] = sum
				}
				delta = next
			}
		}

		// apply averaged gradients with l2 penalty
		for l := range n.Layers {
			for j := range n.Layers[l].W {
				for i := range n.Layers[l].W[j] {
					g := gradW[l][j][i]/nSamples + l2*n.Layers[l].W[j][i]
					n.Layers[l].W[j][i] -= rate * g
				}
				n.Layers[l].B[j] -= rate * gradB[l][j] / nSamples
			}
		}
	}
}

func (n *network) zeroGrads() (gradW [][][]float64, gradB [][]float64) {
	gradW = make([][][]float64, len(n.Layers))
	gradB = make([][]float64, len(n.Layers))
	for l, layer := range n.Layers {
		gradW[l] = make([][]float64, len(layer.W))
		for j := range layer.W {
			gradW[l][j] = make([]float64, len(layer.W[j]))
		}
		gradB[l] = make([]float64, len(layer.B))
	}
	return gradW, gradB
}

func relu(v []float64) {
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
	}
}

// softmax converts raw scores to normalized probabilities
func softmax(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	sum := 0.0
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
