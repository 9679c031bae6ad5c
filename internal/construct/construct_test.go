package construct

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdkop/internal/document"
)

func loadTree(t *testing.T) *Index {
	t.Helper()
	data, err := os.ReadFile("testdata/tree.json")
	require.NoError(t, err)
	doc, err := document.Parse(data)
	require.NoError(t, err)
	return NewIndex(doc)
}

func parse(t *testing.T, s string) document.Value {
	t.Helper()
	v, err := document.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestFindByPath_Suffix(t *testing.T) {
	idx := loadTree(t)

	node, ok := idx.FindByPath("MyQueue")
	require.True(t, ok)
	assert.Equal(t, "MyQueue", node.ID)
	assert.Equal(t, "DemoAppStack/MyQueue", node.Path)
	assert.Equal(t, "aws-cdk-lib.aws_sqs.Queue", node.FQN())
	assert.Equal(t, "2.50.0", node.Info.Version)
}

func TestFindByPath_FullPath(t *testing.T) {
	idx := loadTree(t)

	node, ok := idx.FindByPath("DemoAppStack/MyBucket")
	require.True(t, ok)
	assert.Equal(t, "DemoAppStack/MyBucket", node.Path)

	node, ok = idx.FindByPath("DemoAppStack/MyBucket/Resource")
	require.True(t, ok)
	assert.Equal(t, "aws-cdk-lib.aws_s3.CfnBucket", node.FQN())
}

func TestFindByPath_NotFound(t *testing.T) {
	idx := loadTree(t)

	_, ok := idx.FindByPath("DoesNotExist")
	assert.False(t, ok)

	// prefix of a path is not a suffix
	_, ok = idx.FindByPath("DemoAppStack/My")
	assert.False(t, ok)
}

func TestFindByPath_SuffixIsNotSegmentAware(t *testing.T) {
	idx := loadTree(t)

	node, ok := idx.FindByPath("Queue")
	require.True(t, ok)
	assert.Equal(t, "DemoAppStack/MyQueue", node.Path)
}

func TestFindByPath_AmbiguousFirstInPreOrder(t *testing.T) {
	doc := parse(t, `{"tree": {"id": "App", "path": "", "children": {
		"Stack": {"id": "Stack", "path": "Stack", "children": {
			"A": {"id": "A", "path": "Stack/A", "children": {"Widget": {"id": "Widget", "path": "Stack/A/Widget"}}},
			"B": {"id": "B", "path": "Stack/B", "children": {"Widget": {"id": "Widget", "path": "Stack/B/Widget"}}}
		}}
	}}}`)
	idx := NewIndex(doc)

	for i := 0; i < 10; i++ {
		node, ok := idx.FindByPath("Widget")
		require.True(t, ok)
		assert.Equal(t, "Stack/A/Widget", node.Path)
	}

	all := idx.FindAllByPath("Widget")
	require.Len(t, all, 2)
	assert.Equal(t, "Stack/A/Widget", all[0].Path)
	assert.Equal(t, "Stack/B/Widget", all[1].Path)
}

func TestPredicates_RequireField(t *testing.T) {
	doc := parse(t, `{"a": {"id": "no-path"}, "b": {"path": 42}, "c": {"constructInfo": {"version": "1"}}, "d": {"constructInfo": "x"}}`)

	_, ok := NewIndex(doc).FindByPath("")
	assert.False(t, ok, "nodes without a string path never match, even for an empty query")

	_, ok = NewIndex(doc).FindByType("")
	assert.False(t, ok, "nodes without constructInfo.fqn never match")
}

func TestFindByType(t *testing.T) {
	idx := loadTree(t)

	stack, ok := idx.FindByType(DefaultStackType)
	require.True(t, ok)
	assert.Equal(t, "DemoAppStack", stack.ID)

	_, ok = idx.FindByType("aws-cdk-lib.aws_sqs")
	assert.False(t, ok, "type match is exact")

	assert.Len(t, idx.FindAllByType(DefaultStackType), 1)
}

func TestNode_Children(t *testing.T) {
	idx := loadTree(t)

	stack, ok := idx.FindByType(DefaultStackType)
	require.True(t, ok)

	children := stack.Children()
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"MyQueue", "MyBucket", "CDKMetadata"}, ids)

	cfn := children[0].Children()
	require.Len(t, cfn, 1)
	attrs, ok := cfn[0].Attributes()
	require.True(t, ok)
	typ, _ := attrs.String("aws:cdk:cloudformation:type")
	assert.Equal(t, "AWS::SQS::Queue", typ)
}

func TestNode_ChildrenAsSequence(t *testing.T) {
	doc := parse(t, `{"id": "Stack", "path": "Stack", "children": [{"id": "X", "path": "Stack/X"}, "junk", {"id": "Y", "path": "Stack/Y"}]}`)

	node, ok := NewIndex(doc).FindByPath("Stack")
	require.True(t, ok)
	children := node.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "Stack/Y", children[1].Path)
	assert.Nil(t, children[0].Info)
	assert.Equal(t, "", children[0].FQN())
}

const twoStackTree = `{"version": "tree-0.1", "tree": {"id": "App", "path": "", "children": {
	"StackA": {"id": "StackA", "path": "StackA", "constructInfo": {"fqn": "aws-cdk-lib.Stack"}, "children": {
		"Bucket": {"id": "Bucket", "path": "StackA/Bucket", "constructInfo": {"fqn": "aws-cdk-lib.aws_s3.Bucket"}}
	}},
	"Prod": {"id": "Prod", "path": "Prod", "constructInfo": {"fqn": "aws-cdk-lib.Stage"}, "children": {
		"StackB": {"id": "StackB", "path": "Prod/StackB", "constructInfo": {"fqn": "aws-cdk-lib.Stack"}, "children": {
			"Bucket": {"id": "Bucket", "path": "Prod/StackB/Bucket", "constructInfo": {"fqn": "aws-cdk-lib.aws_s3.Bucket"}}
		}}
	}}
}}}`

func TestFindStack(t *testing.T) {
	idx := NewIndex(parse(t, twoStackTree))

	first, ok := idx.FindStack(DefaultStackType, "")
	require.True(t, ok)
	assert.Equal(t, "StackA", first.ID)

	byID, ok := idx.FindStack(DefaultStackType, "StackB")
	require.True(t, ok)
	assert.Equal(t, "Prod/StackB", byID.Path)

	byPath, ok := idx.FindStack(DefaultStackType, "Prod/StackB")
	require.True(t, ok)
	assert.Equal(t, "StackB", byPath.ID)

	_, ok = idx.FindStack(DefaultStackType, "Prod")
	assert.False(t, ok, "only nodes of the stack type are selected")

	_, ok = idx.FindStack(DefaultStackType, "StackC")
	assert.False(t, ok)

	stacks := idx.FindAllByType(DefaultStackType)
	require.Len(t, stacks, 2)
	assert.Equal(t, "StackB", stacks[1].ID)
}

func TestNode_Subtree(t *testing.T) {
	idx := NewIndex(parse(t, twoStackTree))

	stack, ok := idx.FindStack(DefaultStackType, "StackB")
	require.True(t, ok)

	node, ok := stack.Subtree().FindByPath("Bucket")
	require.True(t, ok)
	assert.Equal(t, "Prod/StackB/Bucket", node.Path, "lookups stay inside the stack")

	_, ok = stack.Subtree().FindByPath("StackA/Bucket")
	assert.False(t, ok)

	_, ok = Node{}.Subtree().FindByPath("")
	assert.False(t, ok)
}
